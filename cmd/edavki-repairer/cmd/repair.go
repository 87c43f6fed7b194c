package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/janbehro/eDavkiRepairer/internal/archive"
	"github.com/janbehro/eDavkiRepairer/internal/certs"
	"github.com/janbehro/eDavkiRepairer/internal/config"
	"github.com/janbehro/eDavkiRepairer/internal/fiscal/client"
	"github.com/janbehro/eDavkiRepairer/internal/fiscal/sign"
	"github.com/janbehro/eDavkiRepairer/internal/loader"
	"github.com/janbehro/eDavkiRepairer/internal/logger"
	"github.com/janbehro/eDavkiRepairer/internal/model"
	"github.com/janbehro/eDavkiRepairer/internal/repair"
	"github.com/janbehro/eDavkiRepairer/internal/store"
)

var (
	includeOnly string
	assumeYes   bool
)

var repairCmd = &cobra.Command{
	Use:   "repair",
	Short: "Repair and resubmit rejected receipts",
	Long: `Repair loads the extracted original requests, pairs them with customer
VAT numbers from the POS database, synthesizes VAT-number corrections for
transactions that never carried one, then re-numbers, re-signs, and submits
everything sequentially.

Receipts are numbered in strict increasing order; a number is consumed even
when its request fails, so a rerun can never collide with an earlier
attempt.`,
	Args: cobra.NoArgs,
	RunE: runRepair,
}

func init() {
	rootCmd.AddCommand(repairCmd)

	repairCmd.Flags().StringVar(&includeOnly, "includeOnly", "", "Comma-separated transaction ids eligible for VAT-number correction (overrides the date range)")
	repairCmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "Skip the confirmation prompt")
}

func runRepair(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log, err := logger.New(cfg.LogLevel, verbose)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx := context.Background()

	posStore, err := store.Open(cfg.PosDBFile)
	if err != nil {
		return err
	}
	defer posStore.Close()

	// Everything that can make the run pointless fails here, before any
	// request is prepared or sent.
	info, err := posStore.EDavkiInfo(ctx)
	if err != nil {
		return fmt.Errorf("fiscalization configuration: %w", err)
	}
	cert, err := certs.Load(cfg.PosDir, info, cfg.PasswordKey)
	if err != nil {
		return err
	}
	signer, err := sign.New(cert.Leaf, cert.Key)
	if err != nil {
		return err
	}
	lastNumber, err := posStore.LastReceiptNumber(ctx)
	if err != nil {
		return fmt.Errorf("last receipt number: %w", err)
	}
	merchantTaxID, err := posStore.MerchantTaxNumber(ctx)
	if err != nil {
		return fmt.Errorf("merchant tax number: %w", err)
	}
	merchantTaxNumber, err := model.ParseTaxNumber(merchantTaxID)
	if err != nil {
		return err
	}

	from, _ := cfg.FromTime()
	to, _ := cfg.ToTime()

	requests, err := loader.LoadRequests(cfg.RequestsDir)
	if err != nil {
		return err
	}

	// Pairing matches on the pre-repair invoice numbers, so it has to run
	// before anything renumbers a request.
	vatCustomers, err := posStore.CustomerVatNumbers(ctx, from, to)
	if err != nil {
		return err
	}
	repair.PairWithVatCustomers(requests, vatCustomers)

	transactions, err := posStore.TransactionsWithoutVatNumber(ctx, from, to, splitIDs(includeOnly))
	if err != nil {
		return err
	}
	for _, txn := range transactions {
		req, err := repair.SynthesizeVatCorrection(txn, merchantTaxNumber)
		if err != nil {
			log.Warn("skipping transaction", zap.Error(err))
			continue
		}
		requests = append(requests, req)
	}

	if len(requests) == 0 {
		fmt.Println("Nothing to repair.")
		return nil
	}

	printListing(requests)
	if !assumeYes && !confirm(len(requests), cfg.RequestsDir) {
		fmt.Println("Aborted.")
		return nil
	}

	if cfg.StagingOverride {
		if err := applyStagingOverride(cfg, cert, requests, log); err != nil {
			return err
		}
	}

	session := repair.NewSession(lastNumber)
	runner := repair.NewRunner(repair.RunnerConfig{
		Engine:          repair.NewEngine(signer),
		Signer:          signer,
		Poster:          client.New(cfg.BaseURL, cert.TLS, log, client.WithTimeout(cfg.Timeout.Std())),
		Recorder:        posStore,
		Archiver:        archive.New(cfg.ResultPath),
		Session:         session,
		SellerTaxNumber: sellerTaxNumber(cfg),
		Log:             log,
	})

	summary, runErr := runner.Run(ctx, requests)

	fmt.Printf("\nDone. success: %d, failed: %d (sent %d)\n", summary.Fiscalized, summary.Rejected, summary.Sent)
	if len(summary.Unresolved) > 0 {
		fmt.Println("Transactions still lacking a VAT number correction:")
		for _, id := range summary.Unresolved {
			fmt.Printf("  %s\n", id)
		}
	}
	return runErr
}

// printListing shows every request with its original receipt id and, when
// paired, the customer VAT number about to be attached.
func printListing(requests []*repair.Request) {
	for _, req := range requests {
		fmt.Printf("Original receipt id: %s", req.ReferenceID())
		if vat := req.Dto.InvoiceRequest.Invoice.CustomerVATNumber; vat != "" {
			fmt.Printf(", CustomerVatNumber: %s", vat)
		}
		fmt.Println()
	}
}

func confirm(count int, dir string) bool {
	fmt.Printf("\nPath %s contains %d requests. Do you want to proceed? y/n\n", dir, count)
	reader := bufio.NewReader(os.Stdin)
	answer, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(answer), "y")
}

// applyStagingOverride swaps the production tax number and premise id for
// the ones the staging environment expects. The staging certificate carries
// its tax number in the subject organizational unit.
func applyStagingOverride(cfg config.Config, cert *certs.Certificate, requests []*repair.Request, log *zap.Logger) error {
	ou, err := cert.OrganizationalUnit()
	if err != nil {
		return err
	}
	taxNumber, err := model.ParseTaxNumber(ou)
	if err != nil {
		return err
	}
	log.Warn("staging override active",
		zap.Int64("tax_number", taxNumber),
		zap.String("business_premise_id", cfg.StagingBusinessPremiseID))

	for _, req := range requests {
		inv := &req.Dto.InvoiceRequest.Invoice
		inv.TaxNumber = taxNumber
		inv.InvoiceIdentifier.BusinessPremiseID = cfg.StagingBusinessPremiseID
	}
	return nil
}

func sellerTaxNumber(cfg config.Config) *int64 {
	if cfg.SellerTaxNumber == 0 {
		return nil
	}
	n := cfg.SellerTaxNumber
	return &n
}

func splitIDs(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	ids := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			ids = append(ids, trimmed)
		}
	}
	return ids
}
