package evchat

import (
	"errors"
	"fmt"

	"github.com/randalmurphal/turngraph/pkg/turngraph"
	tgerrors "github.com/randalmurphal/turngraph/pkg/turngraph/errors"
)

// FailurePrefix starts every user-visible failure message.
const FailurePrefix = "채팅 처리 중 오류가 발생했습니다: "

// FailureMessage converts a turn error into the single message shown to
// the user. Upstream outages get a short description; other errors keep
// their text for diagnostics.
func FailureMessage(err error) string {
	if err == nil {
		return ""
	}

	var (
		routing *turngraph.RoutingError
		limit   *turngraph.RecursionLimitError
		cancel  *turngraph.CancellationError
		output  *tgerrors.OutputError
	)
	var detail string
	switch {
	case errors.Is(err, ErrEmptyQuestion):
		detail = "질문이 비어 있습니다"
	case errors.Is(err, tgerrors.ErrUpstreamTimeout):
		detail = fmt.Sprintf("외부 서비스 응답 시간이 초과되었습니다 (%v)", err)
	case errors.Is(err, tgerrors.ErrUpstreamUnavailable):
		detail = fmt.Sprintf("외부 서비스에 연결할 수 없습니다 (%v)", err)
	case errors.As(err, &output):
		detail = fmt.Sprintf("모델 응답을 해석할 수 없습니다 (%v)", err)
	case errors.As(err, &routing), errors.As(err, &limit):
		detail = fmt.Sprintf("워크플로 구성 오류 (%v)", err)
	case errors.As(err, &cancel):
		detail = "요청이 취소되었습니다"
	default:
		detail = err.Error()
	}
	return FailurePrefix + detail
}
