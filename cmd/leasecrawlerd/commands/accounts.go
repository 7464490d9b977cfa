package commands

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/marmos91/sharelease/internal/cli/output"
	"github.com/marmos91/sharelease/internal/cli/prompt"
	"github.com/marmos91/sharelease/internal/clock"
	"github.com/marmos91/sharelease/pkg/leasedb"
)

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "Manage accounting crawler accounts",
}

var accountsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Register a new account, prompting for a pubkey if one isn't given",
	RunE:  runAccountsAdd,
}

var accountsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all accounts",
	RunE:  runAccountsList,
}

var accountPubkey string
var accountsFormat string

func init() {
	accountsAddCmd.Flags().StringVar(&accountPubkey, "pubkey", "", "account public key (generated if omitted)")
	accountsListCmd.Flags().StringVar(&accountsFormat, "format", "table", "output format: table, json, yaml")
	accountsCmd.AddCommand(accountsAddCmd, accountsListCmd)
}

func runAccountsAdd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	pubkey := accountPubkey
	if pubkey == "" {
		confirmed, err := prompt.Confirm("Generate a random pubkey for this account?", true)
		if err != nil {
			return err
		}
		if confirmed {
			pubkey = uuid.NewString()
		} else {
			pubkey, err = prompt.InputRequired("Account pubkey")
			if err != nil {
				return err
			}
		}
	}

	ldb, err := leasedb.New(&cfg.LeaseDB)
	if err != nil {
		return fmt.Errorf("open lease database: %w", err)
	}
	defer ldb.Close()

	id, err := ldb.CreateAccount(cmd.Context(), pubkey, clock.System{}.Now())
	if err != nil {
		return fmt.Errorf("create account: %w", err)
	}

	fmt.Printf("created account %d (pubkey %s)\n", id, pubkey)
	return nil
}

func runAccountsList(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(accountsFormat)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ldb, err := leasedb.New(&cfg.LeaseDB)
	if err != nil {
		return fmt.Errorf("open lease database: %w", err)
	}
	defer ldb.Close()

	accounts, err := ldb.GetAllAccounts(cmd.Context())
	if err != nil {
		return fmt.Errorf("get all accounts: %w", err)
	}

	printer := output.NewPrinter(os.Stdout, format)
	if format != output.FormatTable {
		return printer.Print(accounts)
	}

	table := output.NewTableData("ID", "Pubkey")
	for _, account := range accounts {
		table.AddRow(fmt.Sprintf("%d", account.ID), account.Pubkey)
	}
	return printer.Print(table)
}
