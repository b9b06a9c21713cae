package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/holiman/uint256"

	"reflection-token-lab/internal/api"
	"reflection-token-lab/internal/domain"
	"reflection-token-lab/internal/ledger"
	"reflection-token-lab/internal/observability"
	"reflection-token-lab/internal/service"
)

const maxBodyBytes = 1 << 16

var errBadRequest = errors.New("bad request")

type apiServer struct {
	svc     *service.Service
	feed    http.Handler
	logger  *log.Logger
	started time.Time
}

// wsHandler is satisfied by the feed hub.
type wsHandler interface {
	Handler() http.HandlerFunc
}

func newAPI(svc *service.Service, hub wsHandler, logger *log.Logger) *apiServer {
	a := &apiServer{svc: svc, logger: logger, started: time.Now()}
	if hub != nil {
		a.feed = hub.Handler()
	}
	return a
}

func (a *apiServer) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /transfer", a.handleTransfer)
	mux.HandleFunc("POST /launch", a.handleLaunch)
	mux.HandleFunc("POST /pair", a.handleFlag(a.svc.SetPair))
	mux.HandleFunc("POST /exempt", a.handleFlag(a.svc.SetExempt))

	mux.HandleFunc("GET /balance/{addr}", a.handleBalance)
	mux.HandleFunc("GET /supply", a.handleSupply)
	mux.HandleFunc("GET /holders", a.handleHolders)
	mux.HandleFunc("GET /status", a.handleStatus)

	// Health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// Prometheus metrics
	mux.Handle("GET /metrics", observability.Handler())

	if a.feed != nil {
		mux.Handle("GET /ws", a.feed)
	}
	return mux
}

func (a *apiServer) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var req api.TransferRequest
	if err := decode(w, r, &req); err != nil {
		a.writeError(w, err)
		return
	}

	var amount *uint256.Int
	var err error
	if req.Units {
		amount, err = domain.ParseUnits(req.Amount, a.svc.Ledger().Config().Decimals)
	} else {
		amount, err = api.ParseAmount(req.Amount)
	}
	if err != nil {
		a.writeError(w, err)
		return
	}
	if amount == nil {
		a.writeError(w, fmt.Errorf("%w: amount is required", errBadRequest))
		return
	}

	op, err := a.svc.Transfer(r.Context(), req.From, req.To, amount)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, api.FromOperation(op))
}

func (a *apiServer) handleLaunch(w http.ResponseWriter, r *http.Request) {
	var req api.LaunchRequest
	if err := decode(w, r, &req); err != nil {
		a.writeError(w, err)
		return
	}
	op, err := a.svc.Launch(r.Context(), req.Caller)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, api.FromOperation(op))
}

type flagFunc func(ctx context.Context, caller, addr domain.Address, flag bool) (*domain.Operation, error)

func (a *apiServer) handleFlag(apply flagFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req api.FlagRequest
		if err := decode(w, r, &req); err != nil {
			a.writeError(w, err)
			return
		}
		op, err := apply(r.Context(), req.Caller, req.Address, req.Flag)
		if err != nil {
			a.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, api.FromOperation(op))
	}
}

func (a *apiServer) handleBalance(w http.ResponseWriter, r *http.Request) {
	addr, err := domain.ParseAddress(r.PathValue("addr"))
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, api.FromHolder(a.svc.Balance(r.Context(), addr)))
}

func (a *apiServer) handleSupply(w http.ResponseWriter, _ *http.Request) {
	st := a.svc.Status()
	writeJSON(w, http.StatusOK, api.SupplyResponse{
		TotalSupply:  api.Amount(st.TotalSupply),
		Decimals:     st.Decimals,
		TaxCollected: api.Amount(st.TaxCollected),
		Dust:         api.Amount(st.Dust),
	})
}

func (a *apiServer) handleHolders(w http.ResponseWriter, _ *http.Request) {
	holders := a.svc.Holders()
	out := make([]api.Holder, 0, len(holders))
	for _, h := range holders {
		out = append(out, api.FromHolder(h))
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *apiServer) handleStatus(w http.ResponseWriter, _ *http.Request) {
	st := a.svc.Status()
	writeJSON(w, http.StatusOK, api.StatusResponse{
		Name:         st.Name,
		Symbol:       st.Symbol,
		Decimals:     st.Decimals,
		TotalSupply:  api.Amount(st.TotalSupply),
		Holders:      st.Holders,
		Launched:     st.Launched,
		LaunchedAtMs: st.LaunchedAtMs,
		TaxCollected: api.Amount(st.TaxCollected),
		Distributed:  api.Amount(st.Distributed),
		Dust:         api.Amount(st.Dust),
		Pairs:        st.Pairs,
		LastSeq:      st.LastSeq,
		Uptime:       time.Since(a.started).Round(time.Second).String(),
	})
}

// statusOf maps ledger errors to HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, domain.ErrInvalidAddress),
		errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, ledger.ErrZeroAddress),
		errors.Is(err, ledger.ErrReservedAddress),
		errors.Is(err, ledger.ErrInvalidAmount):
		return http.StatusBadRequest
	case errors.Is(err, ledger.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, ledger.ErrAlreadyLaunched):
		return http.StatusConflict
	case errors.Is(err, ledger.ErrInsufficientBalance),
		errors.Is(err, ledger.ErrNotLaunched),
		errors.Is(err, ledger.ErrAntiSnipe):
		return http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrJournalBehind):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (a *apiServer) writeError(w http.ResponseWriter, err error) {
	status := statusOf(err)
	code := service.Reason(err)
	if errors.Is(err, errBadRequest) {
		code = "bad_request"
	}
	if status == http.StatusInternalServerError {
		a.logger.Printf("internal error: %v", err)
	}
	writeJSON(w, status, api.ErrorResponse{Error: err.Error(), Code: code})
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		// address fields fail inside UnmarshalText
		if errors.Is(err, domain.ErrInvalidAddress) {
			return err
		}
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
