package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ledgerkeep/ledgerkeep/credentials"
	"github.com/ledgerkeep/ledgerkeep/vault"
)

type verifyResult struct {
	UserID  string                    `json:"user_id"`
	Total   int                       `json:"total"`
	Failed  int                       `json:"failed"`
	Valid   bool                      `json:"valid"`
	Results []credentials.CheckResult `json:"credentials"`
}

func summarizeChecks(userID string, checks []credentials.CheckResult) verifyResult {
	result := verifyResult{
		UserID:  userID,
		Total:   len(checks),
		Valid:   true,
		Results: checks,
	}
	for _, c := range checks {
		if !c.OK {
			result.Failed++
			result.Valid = false
		}
	}
	return result
}

func printHumanResult(w io.Writer, result verifyResult) {
	fmt.Fprintf(w, "Credential verification for user %s\n", result.UserID)
	fmt.Fprintf(w, "Credentials: %d\n\n", result.Total)

	for _, c := range result.Results {
		if c.OK {
			fmt.Fprintf(w, "[PASS] %s\n", c.Name)
		} else {
			fmt.Fprintf(w, "[FAIL] %s: %s\n", c.Name, c.Cause)
		}
	}

	fmt.Fprintln(w)
	if result.Valid {
		fmt.Fprintln(w, "Result: VALID")
	} else {
		fmt.Fprintf(w, "Result: INVALID (%d of %d credential(s) cannot be opened)\n", result.Failed, result.Total)
	}
}

func printJSONResult(w io.Writer, result verifyResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

var (
	verifyUserID     string
	verifyJSONOutput bool
)

var errVerifyFailed = errors.New("one or more credentials failed verification")

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check that a user's stored credentials still decrypt",
	Long: `Opens every credential stored for --user with the configured master
secret and reports which rows fail and why (malformed envelope or integrity
failure). Values are never printed.

Run it after rotating infrastructure to confirm the deployment still has the
right master secret. Exits non-zero when any credential fails.`,
	RunE: runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)
	verifyCmd.Flags().StringVar(&verifyUserID, "user", "", "User id whose credentials to verify")
	verifyCmd.Flags().BoolVar(&verifyJSONOutput, "json", false, "Output results as JSON")
	_ = verifyCmd.MarkFlagRequired("user")
}

// promptMasterSecret reads the master secret from the terminal without echo.
func promptMasterSecret(cmd *cobra.Command) error {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil
	}
	fmt.Fprint(cmd.ErrOrStderr(), "Master secret: ")
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(cmd.ErrOrStderr())
	if err != nil {
		return fmt.Errorf("reading master secret: %w", err)
	}
	cfg.MasterSecret = strings.TrimSpace(string(b))
	return nil
}

func runVerify(cmd *cobra.Command, args []string) error {
	if cfg.MasterSecret == "" {
		if err := promptMasterSecret(cmd); err != nil {
			return err
		}
	}
	logger, err := cfg.NewLogger(cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	svc, closeRepo, err := newService(ctx, cfg, logger, true)
	if err != nil {
		return err
	}
	defer closeRepo()

	checks, err := svc.Check(ctx, vault.Identity{UserID: verifyUserID})
	if err != nil {
		return err
	}
	result := summarizeChecks(verifyUserID, checks)

	out := cmd.OutOrStdout()
	if verifyJSONOutput {
		if err := printJSONResult(out, result); err != nil {
			return err
		}
	} else {
		printHumanResult(out, result)
	}

	if !result.Valid {
		return errVerifyFailed
	}
	return nil
}
