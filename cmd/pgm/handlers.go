package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/edp1096/toy-powerflow/pkg/analysis"
	"github.com/edp1096/toy-powerflow/pkg/batch"
	"github.com/edp1096/toy-powerflow/pkg/dataset"
	"github.com/edp1096/toy-powerflow/pkg/network"
)

const maxBodyBytes = 32 << 20

type errorResponse struct {
	Error  string          `json:"error"`
	Issues []network.Issue `json:"issues,omitempty"`
}

type scenarioResponse struct {
	Index      int              `json:"index"`
	Name       string           `json:"name"`
	DurationMs float64          `json:"duration_ms"`
	Result     *analysis.Result `json:"result,omitempty"`
	Error      string           `json:"error,omitempty"`
}

type batchResponse struct {
	RunID     string             `json:"run_id"`
	Failed    int                `json:"failed"`
	Scenarios []scenarioResponse `json:"scenarios"`
}

func newBatchResponse(report *batch.Report) batchResponse {
	resp := batchResponse{RunID: report.RunID, Failed: report.Failed()}
	for _, s := range report.Scenarios {
		sr := scenarioResponse{
			Index:      s.Index,
			Name:       s.Name,
			DurationMs: float64(s.Duration.Microseconds()) / 1000,
			Result:     s.Result,
		}
		if s.Err != nil {
			sr.Error = s.Err.Error()
		}
		resp.Scenarios = append(resp.Scenarios, sr)
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

// writeError maps calculation errors to status codes.
func writeError(w http.ResponseWriter, err error) {
	resp := errorResponse{Error: err.Error()}
	status := http.StatusInternalServerError

	var topo *network.TopologyError
	switch {
	case errors.As(err, &topo):
		status = http.StatusUnprocessableEntity
		resp.Issues = topo.Issues
	case errors.Is(err, analysis.ErrIslandedNetwork),
		errors.Is(err, analysis.ErrIterationLimitExceeded),
		errors.Is(err, analysis.ErrUnobservableSystem):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, analysis.ErrUnsupportedMethod):
		status = http.StatusBadRequest
	}
	writeJSON(w, status, resp)
}

func (rm *RouteManager) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func decodeDocument(w http.ResponseWriter, r *http.Request) (*dataset.Document, error) {
	format := dataset.FormatJSON
	if ct := r.Header.Get("Content-Type"); ct == "application/yaml" || ct == "application/x-yaml" {
		format = dataset.FormatYAML
	}
	return dataset.Decode(http.MaxBytesReader(w, r.Body, maxBodyBytes), format)
}

func optionsFromQuery(r *http.Request) (analysis.Options, error) {
	q := r.URL.Query()
	opts := analysis.DefaultOptions()

	method, err := analysis.ParseMethod(q.Get("method"))
	if err != nil {
		return opts, err
	}
	opts.Method = method

	if v := q.Get("tolerance"); v != "" {
		tol, err := strconv.ParseFloat(v, 64)
		if err != nil || tol <= 0 {
			return opts, fmt.Errorf("invalid tolerance %q", v)
		}
		opts.Tolerance = tol
	}
	if v := q.Get("max_iterations"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return opts, fmt.Errorf("invalid max_iterations %q", v)
		}
		opts.MaxIterations = n
	}
	return opts, nil
}

// intParam and boolParam treat an absent query value as its default.
func intParam(v string, def int) (int, error) {
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

func boolParam(v string) (bool, error) {
	if v == "" {
		return false, nil
	}
	return strconv.ParseBool(v)
}

func (rm *RouteManager) calculationHandler(calc analysis.Calculation) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		opts, err := optionsFromQuery(r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		doc, err := decodeDocument(w, r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		net, err := doc.Network()
		if err != nil {
			writeError(w, err)
			return
		}

		res, err := analysis.Run(net, calc, opts)
		if err != nil {
			log.Printf("%v failed: %v", calc, err)
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func (rm *RouteManager) batchHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts, err := optionsFromQuery(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	calc := analysis.PowerFlow
	if v := q.Get("calculation"); v != "" {
		if calc, err = analysis.ParseCalculation(v); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
	}
	threads, err := intParam(q.Get("threads"), 0)
	if err != nil || threads < 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("invalid threads %q", q.Get("threads"))})
		return
	}
	failFast, err := boolParam(q.Get("fail_fast"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("invalid fail_fast %q", q.Get("fail_fast"))})
		return
	}
	n1, err := boolParam(q.Get("n1"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("invalid n1 %q", q.Get("n1"))})
		return
	}

	doc, err := decodeDocument(w, r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	net, err := doc.Network()
	if err != nil {
		writeError(w, err)
		return
	}

	updates := doc.Updates
	if n1 {
		updates = append(updates, net.ContingencyUpdates()...)
	}

	report, err := batch.Solve(r.Context(), net, updates, batch.Options{
		Calculation: calc,
		Analysis:    opts,
		Threads:     threads,
		FailFast:    failFast,
	})
	if report == nil {
		writeError(w, err)
		return
	}
	if err != nil {
		log.Printf("batch %s stopped: %v", report.RunID, err)
	}
	writeJSON(w, http.StatusOK, newBatchResponse(report))
}

func (rm *RouteManager) validateHandler(w http.ResponseWriter, r *http.Request) {
	doc, err := decodeDocument(w, r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	issues := network.Validate(&doc.Input)
	writeJSON(w, http.StatusOK, map[string]any{
		"valid":  !network.HasErrors(issues),
		"issues": issues,
	})
}
