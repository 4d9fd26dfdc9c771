package evchat

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/randalmurphal/turngraph/pkg/turngraph"
	tgerrors "github.com/randalmurphal/turngraph/pkg/turngraph/errors"
)

func TestFailureMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"plain", errors.New("boom"), FailurePrefix + "boom"},
		{"empty question", ErrEmptyQuestion, FailurePrefix + "질문이 비어 있습니다"},
		{"cancelled", &turngraph.CancellationError{}, FailurePrefix + "요청이 취소되었습니다"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FailureMessage(tt.err))
		})
	}
}

func TestFailureMessage_Upstream(t *testing.T) {
	timeout := &turngraph.NodeError{
		NodeID: NodeGenerateQuery,
		Op:     "execute",
		Err: &tgerrors.UpstreamError{
			Service: "llm",
			Op:      "complete",
			Err:     &tgerrors.TimeoutError{Operation: "complete", Duration: time.Second.String()},
		},
	}
	msg := FailureMessage(timeout)
	assert.Contains(t, msg, "응답 시간이 초과")
	assert.Contains(t, msg, NodeGenerateQuery)

	output := &turngraph.NodeError{NodeID: turngraph.START, Op: "route", Err: &tgerrors.OutputError{Output: "maybe", Message: "no label"}}
	assert.Contains(t, FailureMessage(output), "모델 응답을 해석할 수 없습니다")
}
