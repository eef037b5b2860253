package console

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benkokes/elite-EI65-robot-controller/processor/report"
)

type failingSink struct{ err error }

func (s failingSink) PublishJoints(context.Context, report.JointAngles) error { return s.err }
func (s failingSink) PublishPlc(context.Context, report.PlcStateReport) error { return s.err }

func TestSinks_DeliverToAll(t *testing.T) {
	boom := stderrors.New("broker down")
	first, last := &recordingSink{}, &recordingSink{}
	sinks := Sinks{first, failingSink{err: boom}, last}

	err := sinks.PublishJoints(context.Background(), report.JointAngles{"S": 1})
	require.ErrorIs(t, err, boom)
	err = sinks.PublishPlc(context.Background(), report.PlcStateReport{})
	require.ErrorIs(t, err, boom)

	for _, s := range []*recordingSink{first, last} {
		joints, plc := s.counts()
		assert.Equal(t, 1, joints)
		assert.Equal(t, 1, plc)
	}
}

func TestSinks_Empty(t *testing.T) {
	assert.NoError(t, Sinks(nil).PublishJoints(context.Background(), report.JointAngles{}))
}
