// Command vaultctl exercises a WorldIdStore end to end against the
// filesystem dev adapters: create/open/delete an account, store/list/
// update/delete a credential, and walk the disclosure lifecycle.
package main

import (
	"crypto/sha256"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"os"

	"worldid.dev/vault"
	"worldid.dev/vault/internal/platform"
	"worldid.dev/vault/internal/vformat"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		printUsage(stderr)
		return 2
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "create-account":
		return cmdCreateAccount(rest, stdout, stderr)
	case "list-accounts":
		return cmdListAccounts(rest, stdout, stderr)
	case "delete-account":
		return cmdDeleteAccount(rest, stdout, stderr)
	case "store-credential":
		return cmdStoreCredential(rest, stdout, stderr)
	case "list-credentials":
		return cmdListCredentials(rest, stdout, stderr)
	case "get-credential":
		return cmdGetCredential(rest, stdout, stderr)
	case "update-status":
		return cmdUpdateStatus(rest, stdout, stderr)
	case "delete-credential":
		return cmdDeleteCredential(rest, stdout, stderr)
	case "compact":
		return cmdCompact(rest, stdout, stderr)
	case "begin-disclosure":
		return cmdBeginDisclosure(rest, stdout, stderr)
	case "mark-disclosure-pending":
		return cmdMarkDisclosurePending(rest, stdout, stderr)
	case "confirm-disclosure":
		return cmdConfirmDisclosure(rest, stdout, stderr)
	case "list-disclosures":
		return cmdListDisclosures(rest, stdout, stderr)
	case "help", "-h", "--help":
		printUsage(stdout)
		return 0
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n", cmd)
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "usage: vaultctl <command> [flags]")
	_, _ = fmt.Fprintln(w, "commands:")
	_, _ = fmt.Fprintln(w, "  create-account -root <dir>")
	_, _ = fmt.Fprintln(w, "  list-accounts -root <dir>")
	_, _ = fmt.Fprintln(w, "  delete-account -root <dir> -account <hex>")
	_, _ = fmt.Fprintln(w, "  store-credential -root <dir> -account <hex> -schema <id> -blob <text>")
	_, _ = fmt.Fprintln(w, "  list-credentials -root <dir> -account <hex>")
	_, _ = fmt.Fprintln(w, "  get-credential -root <dir> -account <hex> -credential <hex>")
	_, _ = fmt.Fprintln(w, "  update-status -root <dir> -account <hex> -credential <hex> -status <int>")
	_, _ = fmt.Fprintln(w, "  delete-credential -root <dir> -account <hex> -credential <hex>")
	_, _ = fmt.Fprintln(w, "  compact -root <dir> -account <hex>")
	_, _ = fmt.Fprintln(w, "  begin-disclosure -root <dir> -account <hex> -credential <hex> -nullifier <hex>")
	_, _ = fmt.Fprintln(w, "  mark-disclosure-pending -root <dir> -account <hex> -id <hex>")
	_, _ = fmt.Fprintln(w, "  confirm-disclosure -root <dir> -account <hex> -id <hex>")
	_, _ = fmt.Fprintln(w, "  list-disclosures -root <dir> -account <hex>")
}

// openStore builds a vault.Options rooted at root, wiring the keyring-backed
// dev keystore the same way cmd/vaultctl defaults on a developer machine.
func openStore(root string) (*vault.WorldIdStore, error) {
	opts := vault.DefaultOptions(root)
	keystore, err := platform.NewKeyringKeystore("worldid-vaultctl", "device-kek")
	if err != nil {
		return nil, fmt.Errorf("open keystore: %w", err)
	}
	opts.Keystore = keystore
	return vault.Open(opts)
}

func parseAccountID(s string) (vformat.AccountID, error) {
	return vformat.AccountIDFromHex(s)
}

func parseCredentialID(s string) (vformat.CredentialID, error) {
	return vformat.CredentialIDFromHex(s)
}

func cmdCreateAccount(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("create-account", flag.ContinueOnError)
	fs.SetOutput(stderr)
	root := fs.String("root", "", "vault root directory")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *root == "" {
		_, _ = fmt.Fprintln(stderr, "create-account: -root is required")
		return 2
	}
	store, err := openStore(*root)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "create-account: %v\n", err)
		return 1
	}
	accountID, err := store.CreateAccount()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "create-account: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintf(stdout, "account: %s\n", accountID.String())
	return 0
}

func cmdListAccounts(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("list-accounts", flag.ContinueOnError)
	fs.SetOutput(stderr)
	root := fs.String("root", "", "vault root directory")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	store, err := openStore(*root)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "list-accounts: %v\n", err)
		return 1
	}
	accounts, err := store.ListAccounts()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "list-accounts: %v\n", err)
		return 1
	}
	for _, a := range accounts {
		_, _ = fmt.Fprintf(stdout, "%s created_at=%d path=%s\n", a.AccountID.String(), a.CreatedAt, a.VaultPath)
	}
	return 0
}

func cmdDeleteAccount(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("delete-account", flag.ContinueOnError)
	fs.SetOutput(stderr)
	root := fs.String("root", "", "vault root directory")
	accountHex := fs.String("account", "", "account id (hex)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	accountID, err := parseAccountID(*accountHex)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "delete-account: %v\n", err)
		return 2
	}
	store, err := openStore(*root)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "delete-account: %v\n", err)
		return 1
	}
	if err := store.DeleteAccount(accountID); err != nil {
		_, _ = fmt.Fprintf(stderr, "delete-account: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintln(stdout, "deleted")
	return 0
}

func cmdStoreCredential(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("store-credential", flag.ContinueOnError)
	fs.SetOutput(stderr)
	root := fs.String("root", "", "vault root directory")
	accountHex := fs.String("account", "", "account id (hex)")
	schema := fs.String("schema", "", "issuer schema id")
	blob := fs.String("blob", "", "credential blob contents (plaintext)")
	associatedData := fs.String("associated-data", "", "associated data (plaintext, optional)")
	expiresAt := fs.Int64("expires-at", 0, "expiry unix nanos, 0 = no expiry")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	accountID, err := parseAccountID(*accountHex)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "store-credential: %v\n", err)
		return 2
	}
	store, err := openStore(*root)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "store-credential: %v\n", err)
		return 1
	}
	handle, err := store.OpenAccount(accountID)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "store-credential: %v\n", err)
		return 1
	}
	defer func() { _ = handle.Close() }()

	id, err := handle.StoreCredential(vault.CredentialRecord{
		IssuerSchemaID:  *schema,
		CredentialBlob:  []byte(*blob),
		AssociatedData:  []byte(*associatedData),
		GenesisIssuedAt: vformat.NowNanos(),
		ExpiresAt:       *expiresAt,
	})
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "store-credential: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintf(stdout, "credential: %s\n", id.String())
	return 0
}

func cmdListCredentials(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("list-credentials", flag.ContinueOnError)
	fs.SetOutput(stderr)
	root := fs.String("root", "", "vault root directory")
	accountHex := fs.String("account", "", "account id (hex)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	accountID, err := parseAccountID(*accountHex)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "list-credentials: %v\n", err)
		return 2
	}
	store, err := openStore(*root)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "list-credentials: %v\n", err)
		return 1
	}
	handle, err := store.OpenAccountSnapshot(accountID)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "list-credentials: %v\n", err)
		return 1
	}
	defer func() { _ = handle.Close() }()

	records, err := handle.ListCredentials(vault.CredentialFilter{})
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "list-credentials: %v\n", err)
		return 1
	}
	for _, r := range records {
		_, _ = fmt.Fprintf(stdout, "%s schema=%s status=%d created_at=%d\n", r.CredentialID.String(), r.IssuerSchemaID, r.Status, r.CreatedAt)
	}
	return 0
}

func cmdGetCredential(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("get-credential", flag.ContinueOnError)
	fs.SetOutput(stderr)
	root := fs.String("root", "", "vault root directory")
	accountHex := fs.String("account", "", "account id (hex)")
	credentialHex := fs.String("credential", "", "credential id (hex)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	accountID, err := parseAccountID(*accountHex)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "get-credential: %v\n", err)
		return 2
	}
	credentialID, err := parseCredentialID(*credentialHex)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "get-credential: %v\n", err)
		return 2
	}
	store, err := openStore(*root)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "get-credential: %v\n", err)
		return 1
	}
	handle, err := store.OpenAccountSnapshot(accountID)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "get-credential: %v\n", err)
		return 1
	}
	defer func() { _ = handle.Close() }()

	rec, err := handle.GetCredential(credentialID)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "get-credential: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintf(stdout, "schema=%s status=%d blob=%s associated_data=%s\n",
		rec.IssuerSchemaID, rec.Status, rec.CredentialBlob, rec.AssociatedData)
	return 0
}

func cmdUpdateStatus(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("update-status", flag.ContinueOnError)
	fs.SetOutput(stderr)
	root := fs.String("root", "", "vault root directory")
	accountHex := fs.String("account", "", "account id (hex)")
	credentialHex := fs.String("credential", "", "credential id (hex)")
	status := fs.Int("status", 0, "new CredentialStatus value")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	accountID, err := parseAccountID(*accountHex)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "update-status: %v\n", err)
		return 2
	}
	credentialID, err := parseCredentialID(*credentialHex)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "update-status: %v\n", err)
		return 2
	}
	store, err := openStore(*root)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "update-status: %v\n", err)
		return 1
	}
	handle, err := store.OpenAccount(accountID)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "update-status: %v\n", err)
		return 1
	}
	defer func() { _ = handle.Close() }()

	if err := handle.UpdateStatus(credentialID, vformat.CredentialStatus(*status)); err != nil {
		_, _ = fmt.Fprintf(stderr, "update-status: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintln(stdout, "updated")
	return 0
}

func cmdDeleteCredential(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("delete-credential", flag.ContinueOnError)
	fs.SetOutput(stderr)
	root := fs.String("root", "", "vault root directory")
	accountHex := fs.String("account", "", "account id (hex)")
	credentialHex := fs.String("credential", "", "credential id (hex)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	accountID, err := parseAccountID(*accountHex)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "delete-credential: %v\n", err)
		return 2
	}
	credentialID, err := parseCredentialID(*credentialHex)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "delete-credential: %v\n", err)
		return 2
	}
	store, err := openStore(*root)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "delete-credential: %v\n", err)
		return 1
	}
	handle, err := store.OpenAccount(accountID)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "delete-credential: %v\n", err)
		return 1
	}
	defer func() { _ = handle.Close() }()

	if err := handle.DeleteCredential(credentialID); err != nil {
		_, _ = fmt.Fprintf(stderr, "delete-credential: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintln(stdout, "deleted")
	return 0
}

func cmdCompact(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("compact", flag.ContinueOnError)
	fs.SetOutput(stderr)
	root := fs.String("root", "", "vault root directory")
	accountHex := fs.String("account", "", "account id (hex)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	accountID, err := parseAccountID(*accountHex)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "compact: %v\n", err)
		return 2
	}
	store, err := openStore(*root)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "compact: %v\n", err)
		return 1
	}
	handle, err := store.OpenAccount(accountID)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "compact: %v\n", err)
		return 1
	}
	defer func() { _ = handle.Close() }()

	if err := handle.Compact(); err != nil {
		_, _ = fmt.Fprintf(stderr, "compact: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintln(stdout, "compacted")
	return 0
}

func cmdBeginDisclosure(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("begin-disclosure", flag.ContinueOnError)
	fs.SetOutput(stderr)
	root := fs.String("root", "", "vault root directory")
	accountHex := fs.String("account", "", "account id (hex)")
	credentialHex := fs.String("credential", "", "credential id (hex)")
	nullifierHex := fs.String("nullifier", "", "external nullifier (hex)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	accountID, err := parseAccountID(*accountHex)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "begin-disclosure: %v\n", err)
		return 2
	}
	credentialID, err := parseCredentialID(*credentialHex)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "begin-disclosure: %v\n", err)
		return 2
	}
	externalNullifier, err := hex.DecodeString(*nullifierHex)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "begin-disclosure: bad nullifier hex: %v\n", err)
		return 2
	}
	store, err := openStore(*root)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "begin-disclosure: %v\n", err)
		return 1
	}
	handle, err := store.OpenAccount(accountID)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "begin-disclosure: %v\n", err)
		return 1
	}
	defer func() { _ = handle.Close() }()

	nullifierHash := sha256.Sum256(append(credentialID[:], externalNullifier...))
	id, err := handle.BeginDisclosure(credentialID, externalNullifier, nullifierHash)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "begin-disclosure: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintf(stdout, "disclosure: %s\n", id.String())
	return 0
}

func cmdMarkDisclosurePending(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("mark-disclosure-pending", flag.ContinueOnError)
	fs.SetOutput(stderr)
	root := fs.String("root", "", "vault root directory")
	accountHex := fs.String("account", "", "account id (hex)")
	idHex := fs.String("id", "", "disclosure id (hex)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	return withDisclosure(*root, *accountHex, *idHex, stdout, stderr, "mark-disclosure-pending",
		func(h *vault.AccountHandle, id vault.PendingID) error { return h.MarkDisclosurePending(id) })
}

func cmdConfirmDisclosure(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("confirm-disclosure", flag.ContinueOnError)
	fs.SetOutput(stderr)
	root := fs.String("root", "", "vault root directory")
	accountHex := fs.String("account", "", "account id (hex)")
	idHex := fs.String("id", "", "disclosure id (hex)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	return withDisclosure(*root, *accountHex, *idHex, stdout, stderr, "confirm-disclosure",
		func(h *vault.AccountHandle, id vault.PendingID) error { return h.ConfirmDisclosure(id) })
}

func withDisclosure(root, accountHex, idHex string, stdout, stderr io.Writer, op string, fn func(*vault.AccountHandle, vault.PendingID) error) int {
	accountID, err := parseAccountID(accountHex)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "%s: %v\n", op, err)
		return 2
	}
	idBytes, err := hex.DecodeString(idHex)
	if err != nil || len(idBytes) != len(vault.PendingID{}) {
		_, _ = fmt.Fprintf(stderr, "%s: bad disclosure id\n", op)
		return 2
	}
	var id vault.PendingID
	copy(id[:], idBytes)

	store, err := openStore(root)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "%s: %v\n", op, err)
		return 1
	}
	handle, err := store.OpenAccount(accountID)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "%s: %v\n", op, err)
		return 1
	}
	defer func() { _ = handle.Close() }()

	if err := fn(handle, id); err != nil {
		_, _ = fmt.Fprintf(stderr, "%s: %v\n", op, err)
		return 1
	}
	_, _ = fmt.Fprintln(stdout, "ok")
	return 0
}

func cmdListDisclosures(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("list-disclosures", flag.ContinueOnError)
	fs.SetOutput(stderr)
	root := fs.String("root", "", "vault root directory")
	accountHex := fs.String("account", "", "account id (hex)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	accountID, err := parseAccountID(*accountHex)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "list-disclosures: %v\n", err)
		return 2
	}
	store, err := openStore(*root)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "list-disclosures: %v\n", err)
		return 1
	}
	handle, err := store.OpenAccount(accountID)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "list-disclosures: %v\n", err)
		return 1
	}
	defer func() { _ = handle.Close() }()

	for _, e := range handle.ListUnfinishedDisclosures() {
		_, _ = fmt.Fprintf(stdout, "%s credential=%s stage=%d created_at=%d\n", e.ID.String(), e.CredentialID.String(), e.Stage, e.CreatedAt)
	}
	return 0
}
