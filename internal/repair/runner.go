package repair

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/janbehro/eDavkiRepairer/internal/fiscal"
	"github.com/janbehro/eDavkiRepairer/internal/fiscal/verify"
)

// Poster posts a signed request body and returns the raw response body.
// Satisfied by *client.Client.
type Poster interface {
	PostInvoice(ctx context.Context, body string) ([]byte, error)
}

// ObjectSigner wraps a payload into a signed token body. Satisfied by
// *sign.Signer.
type ObjectSigner interface {
	SignObject(payload any) (string, error)
}

// NumberRecorder persists the last assigned receipt number. Satisfied by
// store.Store.
type NumberRecorder interface {
	UpdateLastReceiptNumber(ctx context.Context, receiptNumber int) error
}

// Archiver routes request files to the success/failure areas. Satisfied by
// *archive.Archive.
type Archiver interface {
	Success(receiptID, originalFile string, repaired, response []byte) error
	Failure(originalFile string) error
}

// Runner drives the sequential submission loop.
//
// Requests are prepared and sent strictly one at a time, in ascending
// assigned-number order; the next request is not repaired until the previous
// outcome is fully resolved and persisted. Receipt numbers are an
// authority-visible shared sequence, so there is deliberately no concurrency
// here.
type Runner struct {
	engine          *Engine
	signer          ObjectSigner
	poster          Poster
	recorder        NumberRecorder
	archiver        Archiver
	session         *Session
	sellerTaxNumber *int64
	log             *zap.Logger
	out             io.Writer
}

// RunnerConfig wires a Runner.
type RunnerConfig struct {
	Engine          *Engine
	Signer          ObjectSigner
	Poster          Poster
	Recorder        NumberRecorder
	Archiver        Archiver
	Session         *Session
	SellerTaxNumber *int64
	Log             *zap.Logger
	// Out receives operator-facing progress lines. Defaults to stdout.
	Out io.Writer
}

// NewRunner creates a Runner.
func NewRunner(cfg RunnerConfig) *Runner {
	out := cfg.Out
	if out == nil {
		out = os.Stdout
	}
	return &Runner{
		engine:          cfg.Engine,
		signer:          cfg.Signer,
		poster:          cfg.Poster,
		recorder:        cfg.Recorder,
		archiver:        cfg.Archiver,
		session:         cfg.Session,
		sellerTaxNumber: cfg.SellerTaxNumber,
		log:             cfg.Log,
		out:             out,
	}
}

// Run submits every request once. Per-request failures (transport,
// verification, authority rejection) are routed to the failure path and the
// loop continues; only a failed write of the durable receipt-number counter
// aborts the run, because continuing past it risks reissuing numbers on the
// next run. The returned Summary is valid in both cases.
func (r *Runner) Run(ctx context.Context, requests []*Request) (Summary, error) {
	for i, req := range requests {
		number := r.session.NextNumber()
		if err := r.engine.Repair(req, number, r.sellerTaxNumber); err != nil {
			r.reject(req, fmt.Errorf("repair: %w", err))
			continue
		}

		body, err := r.signer.SignObject(req.Dto)
		if err != nil {
			r.reject(req, fmt.Errorf("sign: %w", err))
			continue
		}

		fmt.Fprintf(r.out, "Sending receipt %d/%d\t%s", i+1, len(requests), req.ReferenceID())
		r.session.recordSent()

		respBody, err := r.poster.PostInvoice(ctx, body)
		if err != nil {
			r.reject(req, err)
			continue
		}

		payload, err := verify.AndExtract(respBody)
		if err != nil {
			r.reject(req, err)
			continue
		}

		if err := r.recorder.UpdateLastReceiptNumber(ctx, number); err != nil {
			fmt.Fprintln(r.out, "\taborted")
			return r.session.Summary(), fiscal.ErrPersistence(
				fmt.Sprintf("could not record receipt number %d", number), err)
		}

		repaired, err := json.Marshal(req.Dto)
		if err != nil {
			r.reject(req, fiscal.ErrParse("re-encode repaired request", err))
			continue
		}
		if err := r.archiver.Success(req.ReferenceID(), req.FileName, repaired, payload); err != nil {
			r.log.Error("archiving fiscalized request failed",
				zap.String("receipt", req.ReferenceID()), zap.Error(err))
		}

		r.session.recordFiscalized()
		fmt.Fprintf(r.out, "\tfiscalized (%s)\n", verify.UniqueInvoiceID(payload))
		r.log.Info("receipt fiscalized",
			zap.String("receipt", req.ReferenceID()),
			zap.Int("number", number),
			zap.String("unique_invoice_id", verify.UniqueInvoiceID(payload)))
	}
	return r.session.Summary(), nil
}

// reject routes one failed request: file-backed originals move to the
// failure area, synthesized requests record their transaction id as
// unresolved. The batch continues either way.
func (r *Runner) reject(req *Request, cause error) {
	fmt.Fprintf(r.out, "\tfailed: %v\n", cause)
	r.log.Warn("receipt rejected",
		zap.String("receipt", req.ReferenceID()),
		zap.String("code", fiscal.CodeOf(cause)),
		zap.Error(cause))

	if req.FileName != "" {
		if err := r.archiver.Failure(req.FileName); err != nil {
			r.log.Error("archiving failed request failed",
				zap.String("file", req.FileName), zap.Error(err))
		}
	}
	r.session.recordRejected(req.TransactionID)
}
