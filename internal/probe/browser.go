package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/sitewatch/monitor/internal/browserpool"
	"github.com/sitewatch/monitor/internal/model"
	"github.com/sitewatch/monitor/internal/security"
)

// NetworkEventSink receives NetworkEvents captured during a browser probe
// when a DebugSession is active for the probed Target. Implemented by
// internal/debugsession.ActiveSession.
type NetworkEventSink interface {
	AppendNetworkEvent(model.NetworkEvent)
}

// BrowserProbe navigates to the Target URL in an isolated browsing context
// vended by a browserpool.Pool. Required when a DebugSession is active for
// the Target, optional otherwise.
type BrowserProbe struct {
	pool   *browserpool.Pool
	logger *zap.Logger
}

// NewBrowserProbe builds a BrowserProbe backed by pool.
func NewBrowserProbe(pool *browserpool.Pool, logger *zap.Logger) *BrowserProbe {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BrowserProbe{pool: pool, logger: logger}
}

// Check navigates to target.URL with a 30s navigation timeout, waiting only
// for DOMContentLoaded. If sink is non-nil (an active DebugSession exists
// for this Target), response events are forwarded to it before the context
// is released.
func (p *BrowserProbe) Check(ctx context.Context, target model.Target, sink NetworkEventSink) Outcome {
	observedAt := time.Now().UTC()
	start := time.Now()

	bctx, err := p.pool.Acquire(ctx, 30*time.Second)
	if err != nil {
		return Outcome{
			Available: false, ErrorKind: model.ErrorKindUnexpected,
			ErrorDetail: "acquire browsing context: " + err.Error(), ObservedAt: observedAt,
		}
	}
	defer bctx.Release()

	var mainStatus int64 = -1
	if sink != nil {
		chromedp.ListenTarget(bctx.Ctx(), func(ev any) {
			switch e := ev.(type) {
			case *network.EventResponseReceived:
				if e.Type == network.ResourceTypeDocument {
					mainStatus = e.Response.Status
				}
				status := int(e.Response.Status)
				sink.AppendNetworkEvent(model.NetworkEvent{
					Kind:            model.NetworkEventResponse,
					URL:             e.Response.URL,
					Status:          &status,
					ResponseHeaders: marshalHeaders(e.Response.Headers),
					ResourceType:    mapResourceType(e.Type),
					Timestamp:       time.Now().UTC(),
				})
			case *network.EventRequestWillBeSent:
				sink.AppendNetworkEvent(model.NetworkEvent{
					Kind:           model.NetworkEventRequest,
					URL:            e.Request.URL,
					Method:         e.Request.Method,
					RequestHeaders: marshalHeaders(e.Request.Headers),
					ResourceType:   mapResourceType(e.Type),
					Timestamp:      time.Now().UTC(),
				})
			}
		})
	}

	var navStatus int64
	err = chromedp.Run(bctx.Ctx(),
		network.Enable(),
		chromedp.ActionFunc(func(c context.Context) error {
			_, _, _, navErr := page.Navigate(target.URL).Do(c)
			return navErr
		}),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	elapsed := time.Since(start)

	if err != nil {
		kind := model.ErrorKindNavigation
		if ctx.Err() == context.DeadlineExceeded {
			kind = model.ErrorKindTimeout
		}
		return Outcome{
			Available:      false,
			ResponseTimeMs: float64(elapsed.Microseconds()) / 1000,
			ErrorKind:      kind,
			ErrorDetail:    err.Error(),
			ObservedAt:     observedAt,
		}
	}

	navStatus = mainStatus
	if navStatus <= 0 {
		navStatus = 200 // navigation succeeded with no captured main response; assume success
	}
	status := int(navStatus)
	available := status >= 200 && status < 400

	out := Outcome{
		Available:      available,
		Status:         &status,
		ResponseTimeMs: float64(elapsed.Microseconds()) / 1000,
		ObservedAt:     observedAt,
	}
	if !available {
		out.ErrorKind = model.ErrorKindNavigation
	}
	return out
}

// marshalHeaders redacts and JSON-serializes a CDP header set, matching
// internal/debugsession's own capture path so a NetworkEvent carries
// headers regardless of which probe produced it.
func marshalHeaders(h network.Headers) string {
	if len(h) == 0 {
		return ""
	}
	raw := make(map[string]string, len(h))
	for k, v := range h {
		if s, ok := v.(string); ok {
			raw[k] = s
		} else {
			raw[k] = fmt.Sprintf("%v", v)
		}
	}
	redacted := security.RedactHeaders(raw)
	data, err := json.Marshal(redacted)
	if err != nil {
		return ""
	}
	return string(data)
}

func mapResourceType(t network.ResourceType) model.ResourceType {
	switch t {
	case network.ResourceTypeDocument:
		return model.ResourceDocument
	case network.ResourceTypeStylesheet:
		return model.ResourceStylesheet
	case network.ResourceTypeImage:
		return model.ResourceImage
	case network.ResourceTypeScript:
		return model.ResourceScript
	case network.ResourceTypeXHR:
		return model.ResourceXHR
	case network.ResourceTypeFetch:
		return model.ResourceFetch
	default:
		return model.ResourceOther
	}
}
