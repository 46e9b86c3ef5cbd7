package modelclient

import (
	"errors"
	"time"

	"github.com/sony/gobreaker"

	"github.com/STCN1-Advx/CogniBlock-BackEnd/internal/domain"
)

// breakerSet holds one circuit breaker per Operation, so a string of OCR
// failures can't trip the breaker guarding Summarize calls.
type breakerSet struct {
	breakers map[Operation]*gobreaker.CircuitBreaker
}

func newBreakerSet() *breakerSet {
	bs := &breakerSet{breakers: make(map[Operation]*gobreaker.CircuitBreaker)}
	for _, op := range []Operation{OpOCR, OpCorrect, OpSummarize, OpGenerateTags} {
		op := op
		bs.breakers[op] = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        string(op),
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.Requests >= 5 && float64(counts.TotalFailures)/float64(counts.Requests) >= 0.5
			},
		})
	}
	return bs
}

func (bs *breakerSet) execute(op Operation, fn func() (any, error)) (any, error) {
	b := bs.breakers[op]
	v, err := b.Execute(fn)
	if err == nil {
		return v, nil
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, domain.NewPipelineError(domain.ErrModelUnavailable, "circuit open for "+string(op), err)
	}
	return nil, err
}
