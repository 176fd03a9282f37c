package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/okothm/dawacall/internal/metrics"
	"github.com/okothm/dawacall/internal/models"
	"github.com/okothm/dawacall/internal/ussd"
)

// parseRequest extracts the gateway's form-encoded callback fields.
func parseRequest(r *http.Request) (models.UssdRequest, error) {
	if err := r.ParseForm(); err != nil {
		return models.UssdRequest{}, fmt.Errorf("failed to parse form: %w", err)
	}
	return models.UssdRequest{
		SessionID:   r.FormValue("sessionId"),
		ServiceCode: r.FormValue("serviceCode"),
		PhoneNumber: r.FormValue("phoneNumber"),
		Text:        r.FormValue("text"),
		NetworkCode: r.FormValue("networkCode"),
	}, nil
}

// process runs one request through the session manager under the pipeline
// budget. A blown budget yields a terminal timeout response distinct from
// the generic failure message.
func (s *Server) process(ctx context.Context, req models.UssdRequest) models.UssdResponse {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	done := make(chan models.UssdResponse, 1)
	go func() {
		done <- s.manager.Handle(ctx, req)
	}()

	select {
	case resp := <-done:
		return resp
	case <-ctx.Done():
		slog.Error("Server.process: request pipeline timed out", "sessionID", req.SessionID)
		metrics.RequestsTotal.WithLabelValues("timeout").Inc()
		return models.UssdResponse{Text: ussd.MsgTimeout, End: true}
	}
}

// handleUssd answers the gateway's plain-text callback: a line beginning
// with CON or END.
func (s *Server) handleUssd(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	req, err := parseRequest(r)
	if err != nil {
		slog.Warn("Server.handleUssd: malformed request body", "error", err)
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprint(w, models.UssdResponse{Text: ussd.MsgInvalidRequest, End: true}.Render())
		return
	}

	start := time.Now()
	resp := s.process(r.Context(), req)
	metrics.RequestDuration.Observe(time.Since(start).Seconds())

	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprint(w, resp.Render())
}

// handleUssdJSON answers the structured diagnostic variant, carrying the
// same fields plus processing time. Internal diagnostic detail is only ever
// exposed here, never on the plain-text endpoint.
func (s *Server) handleUssdJSON(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	req, err := parseRequest(r)
	if err != nil {
		slog.Warn("Server.handleUssdJSON: malformed request body", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.DiagnosticResponse{
			Text: ussd.MsgInvalidRequest,
			End:  true,
		})
		return
	}

	start := time.Now()
	resp := s.process(r.Context(), req)
	elapsed := time.Since(start)
	metrics.RequestDuration.Observe(elapsed.Seconds())

	writeJSONResponse(w, http.StatusOK, models.DiagnosticResponse{
		SessionID:    req.SessionID,
		Text:         resp.Text,
		End:          resp.End,
		Carrier:      string(ussd.DetectCarrier(req.NetworkCode)),
		ProcessingMs: elapsed.Milliseconds(),
	})
}
