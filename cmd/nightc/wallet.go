package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Klingon-tech/night-consolidator/internal/wallet"
)

var walletCmd = &cobra.Command{
	Use:   "wallet",
	Short: "Manage encrypted wallets",
}

var walletCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a wallet with a new 24-word seed phrase",
	Args:  cobra.NoArgs,
	RunE:  runWalletCreate,
}

var walletImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import a wallet from an existing seed phrase",
	Args:  cobra.NoArgs,
	RunE:  runWalletImport,
}

var walletListCmd = &cobra.Command{
	Use:   "list",
	Short: "List wallets in the keystore",
	Args:  cobra.NoArgs,
	RunE:  runWalletList,
}

var walletAddressesCmd = &cobra.Command{
	Use:   "addresses",
	Short: "List the derived addresses of a wallet",
	Args:  cobra.NoArgs,
	RunE:  runWalletAddresses,
}

var walletDeriveCmd = &cobra.Command{
	Use:   "derive",
	Short: "Derive more addresses after the highest stored index",
	Args:  cobra.NoArgs,
	RunE:  runWalletDerive,
}

var walletDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete a wallet file",
	Args:  cobra.NoArgs,
	RunE:  runWalletDelete,
}

func init() {
	for _, c := range []*cobra.Command{walletCreateCmd, walletImportCmd, walletDeriveCmd} {
		c.Flags().Int("count", 0, "number of addresses to derive (default wallet.count)")
	}
	walletDeleteCmd.Flags().Bool("yes", false, "do not ask for confirmation")

	walletCmd.AddCommand(walletCreateCmd, walletImportCmd, walletListCmd,
		walletAddressesCmd, walletDeriveCmd, walletDeleteCmd)
}

func runWalletCreate(cmd *cobra.Command, _ []string) error {
	ks, err := openKeystore()
	if err != nil {
		return err
	}
	name := cfg.Wallet.Name
	if ks.Exists(name) {
		return fmt.Errorf("%w: %q", wallet.ErrWalletExists, name)
	}

	mnemonic, err := wallet.GenerateMnemonic()
	if err != nil {
		return fmt.Errorf("generate mnemonic: %w", err)
	}
	fmt.Println("Seed phrase (write this down, it is the only backup!):")
	fmt.Printf("  %s\n\n", mnemonic)

	return saveWallet(ks, name, mnemonic)
}

func runWalletImport(cmd *cobra.Command, _ []string) error {
	ks, err := openKeystore()
	if err != nil {
		return err
	}
	name := cfg.Wallet.Name
	if ks.Exists(name) {
		return fmt.Errorf("%w: %q", wallet.ErrWalletExists, name)
	}

	phrase, err := readSecret("Enter seed phrase: ", "NIGHTC_MNEMONIC")
	if err != nil {
		return fmt.Errorf("read seed phrase: %w", err)
	}
	mnemonic := wallet.NormalizeMnemonic(string(phrase))
	if err := wallet.CheckMnemonic(mnemonic); err != nil {
		return err
	}
	return saveWallet(ks, name, mnemonic)
}

func saveWallet(ks *wallet.Keystore, name, mnemonic string) error {
	password, err := readNewPassword()
	if err != nil {
		return err
	}
	entries, err := ks.Create(name, mnemonic, password, cfg.Wallet.Count, wallet.DefaultParams())
	if err != nil {
		return fmt.Errorf("create wallet: %w", err)
	}

	fmt.Printf("\nWallet saved: %s (%d addresses)\n", name, len(entries))
	printAddresses(entries)
	return nil
}

func runWalletList(cmd *cobra.Command, _ []string) error {
	ks, err := openKeystore()
	if err != nil {
		return err
	}
	names, err := ks.List()
	if err != nil {
		return err
	}
	if len(names) == 0 {
		fmt.Println("No wallets found.")
		return nil
	}
	for _, n := range names {
		addrs, err := ks.Addresses(n)
		if err != nil {
			fmt.Printf("  %-20s (unreadable: %v)\n", n, err)
			continue
		}
		fmt.Printf("  %-20s %d addresses\n", n, len(addrs))
	}
	return nil
}

func runWalletAddresses(cmd *cobra.Command, _ []string) error {
	ks, err := openKeystore()
	if err != nil {
		return err
	}
	entries, err := ks.Addresses(cfg.Wallet.Name)
	if err != nil {
		return err
	}
	printAddresses(entries)
	return nil
}

func runWalletDerive(cmd *cobra.Command, _ []string) error {
	ks, err := openKeystore()
	if err != nil {
		return err
	}
	password, err := readPassword("Wallet password: ")
	if err != nil {
		return err
	}
	added, err := ks.Derive(cfg.Wallet.Name, password, cfg.Wallet.Count)
	if err != nil {
		return err
	}
	fmt.Printf("Derived %d addresses:\n", len(added))
	printAddresses(added)
	return nil
}

func runWalletDelete(cmd *cobra.Command, _ []string) error {
	ks, err := openKeystore()
	if err != nil {
		return err
	}
	name := cfg.Wallet.Name
	if yes, _ := cmd.Flags().GetBool("yes"); !yes {
		answer, err := readLine(fmt.Sprintf("Delete wallet %q? Without its seed phrase the funds are lost. [y/N] ", name))
		if err != nil {
			return err
		}
		if a := strings.ToLower(strings.TrimSpace(answer)); a != "y" && a != "yes" {
			fmt.Println("Aborted.")
			return nil
		}
	}
	if err := ks.Delete(name); err != nil {
		return err
	}
	fmt.Printf("Wallet deleted: %s\n", name)
	return nil
}

func printAddresses(entries []wallet.AddressEntry) {
	for _, e := range entries {
		fmt.Printf("  [%3d] %s\n", e.Index, e.Bech32)
	}
}
