package cmd

import (
	"fmt"
	"os"

	"github.com/jakeburden/interest.systems/storage"

	vault_protocol "github.com/jakeburden/interest.systems/solana"

	"github.com/AlecAivazis/survey/v2"
	figure "github.com/common-nighthawk/go-figure"
	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "interest-cli",
	Short: "interest-cli manages an interest vault on Solana.",
	Long:  `An interactive command-line interface to run vault operations (deposit, withdraw, donate, post distribution roots, claim boost rewards) and manage your wallet profiles.`,
	Run:   run,
}

// run is the main entry point for the interactive CLI.
func run(cmd *cobra.Command, args []string) {
	myFigure := figure.NewFigure("INTEREST", "larry3d", true)
	fmt.Println(titleStyle.Render(myFigure.String()))

	// The main application loop is wrapped in profile selection.
	for {
		signer, profileName, err := runProfileSelection()
		if err != nil {
			// This error is returned when the user chooses to exit.
			fmt.Println("Exiting interest CLI.")
			os.Exit(0)
		}
		runInteractive(signer, profileName)
	}
}

// runProfileSelection handles the UI for choosing or creating a wallet profile.
func runProfileSelection() (solana.PrivateKey, string, error) {
	db, err := storage.NewWalletStorage()
	if err != nil {
		panic(fmt.Sprintf("failed to connect to wallet storage: %v", err))
	}

	// If no admin wallet exists, run the first-time initialization.
	if !db.HasWallet("admin") {
		runInit(db)
	}

	for {
		profiles, err := db.GetAllWalletNames()
		if err != nil {
			panic(fmt.Sprintf("failed to get wallet profiles: %v", err))
		}

		options := append(profiles, "Create New Profile", "Exit")

		selection := ""
		prompt := &survey.Select{
			Message: promptStyle.Render("Choose a profile to continue:"),
			Options: options,
		}
		survey.AskOne(prompt, &selection)

		switch selection {
		case "Create New Profile":
			handleCreateProfile(db)
			// Loop again to show the new profile in the list.
			continue
		case "Exit":
			return nil, "", fmt.Errorf("user exited")
		default: // A profile was selected
			signer, err := db.GetWallet(selection)
			if err != nil {
				panic(fmt.Sprintf("failed to get wallet for profile '%s': %v", selection, err))
			}
			return signer, selection, nil
		}
	}
}

func runInteractive(signer solana.PrivateKey, profileName string) {
	fmt.Printf("\n---\n")
	fmt.Println(titleStyle.Render(fmt.Sprintf("Operating with profile: %s", profileName)))
	fmt.Println(promptStyle.Render(fmt.Sprintf("Address: %s", signer.PublicKey())))
	fmt.Printf("---\n\n")

	var menuOptions []string
	switch profileName {
	case "admin":
		menuOptions = []string{
			"Initialize Vault",
			"Vault Status",
			"Check Balances",
			"Switch Profile",
		}
	case "operator":
		menuOptions = []string{
			"Donate Yield",
			"Post Distribution Root",
			"Vault Status",
			"Check Balances",
			"Switch Profile",
		}
	default:
		menuOptions = []string{
			"Deposit",
			"Withdraw",
			"Claim Boost Reward",
			"Vault History",
			"Check Balances",
			"Switch Profile",
		}
	}

	menu := &survey.Select{
		Message: promptStyle.Render("Choose an action:"),
		Options: menuOptions,
		Help:    "Use the arrow keys to navigate, and press Enter to select.",
	}

	var choice string
	err := survey.AskOne(menu, &choice)
	if err != nil {
		fmt.Println(warningStyle.Render(err.Error()))
		return
	}

	switch choice {
	// Admin actions
	case "Initialize Vault":
		handleInitializeVault(signer)
	// Operator actions
	case "Donate Yield":
		handleDonate(signer)
	case "Post Distribution Root":
		handlePostRoot(signer)
	// User actions
	case "Deposit":
		handleDeposit(signer)
	case "Withdraw":
		handleWithdraw(signer)
	case "Claim Boost Reward":
		handleClaimBoost(signer)
	case "Vault History":
		handleVaultHistory(signer)
	// Common actions
	case "Vault Status":
		handleVaultStatus(signer)
	case "Check Balances":
		handleCheckBalances(signer)
	case "Switch Profile":
		return // Exit this interactive loop to go back to profile selection
	}
	fmt.Println()
}

func handleCreateProfile(db *storage.WalletStorage) {
	name := ""
	namePrompt := &survey.Input{
		Message: "Enter a name for the new profile:",
		Help:    "Use 'operator' for the vault operator, anything else for a depositor profile.",
	}
	survey.AskOne(namePrompt, &name, survey.WithValidator(survey.Required))

	if db.HasWallet(name) {
		fmt.Println(warningStyle.Render(fmt.Sprintf("Profile '%s' already exists.", name)))
		return
	}

	fmt.Println(promptStyle.Render(fmt.Sprintf("\nCreating new '%s' wallet...", name)))
	newWallet := solana.NewWallet()
	if err := db.SaveWallet(name, newWallet.PrivateKey); err != nil {
		fmt.Println(warningStyle.Render(fmt.Sprintf("❌ Failed to save new wallet: %v", err)))
		return
	}
	fmt.Println(titleStyle.Render("\n✅ Profile Created!"))
	fmt.Println(promptStyle.Render("   Wallet address:"), newWallet.PublicKey().String())
	fmt.Println(promptStyle.Render("\nPress Enter to continue..."))
	fmt.Scanln()
}

func runInit(db *storage.WalletStorage) {
	fmt.Println(titleStyle.Render("🚀 Welcome! Let's get you set up."))
	fmt.Println(promptStyle.Render("   Creating new default 'admin' wallet..."))
	newWallet := solana.NewWallet()
	if err := db.SaveWallet("admin", newWallet.PrivateKey); err != nil {
		panic(fmt.Sprintf("failed to save admin wallet: %v", err))
	}
	fmt.Println(promptStyle.Render("   Admin wallet address:"), newWallet.PublicKey().String())
	fmt.Println(promptStyle.Render("   Fund it with devnet SOL before initializing a vault."))
}

func newVaultClient(signer solana.PrivateKey) (*vault_protocol.Client, error) {
	return vault_protocol.NewClient(vault_protocol.DefaultConfig(GetRpcEndpoint()), signer)
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
