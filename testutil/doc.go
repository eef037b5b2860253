// Package testutil provides in-process stand-ins for the controller and the
// monitor's outer dependencies.
//
// # Servers
//
// ConsoleServer is an SSH server imitating the controller console. It accepts
// password and keyboard-interactive logins, grants a PTY and shell, records
// every line typed into the shell and can push arbitrary screen output:
//
//	srv := testutil.NewConsoleServer(t, "robot", "secret")
//	srv.OnLine("cd /rbctrl && ./robotmon", testutil.ClearScreen+testutil.JointFrame(values))
//	host, port := srv.HostPort()
//
// ControlServer is a TCP server imitating the command port. Each connection
// reads one CRLF-terminated command and answers from a script:
//
//	srv := testutil.NewControlServer(t).Reply("speed", "mcserver> 1500")
//
// Both servers listen on loopback ephemeral ports and shut down through
// t.Cleanup.
//
// # Mocks
//
// MockNATSClient records published messages in memory and matches the
// Publish/Subscribe surface of natsclient.Client. MockComponent is a
// lifecycle component with scriptable health for health-aggregation tests.
//
// # Fixtures
//
// JointFrame and PlcFrame render escape-sequence redraws that place a joint
// readout or PLC blocks where the console draws them.
package testutil
