package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"srrt/internal/crypto"
	"srrt/internal/domain"
)

// sealed is the JSON exchanged between seal and open.
type sealed struct {
	Enc           domain.EncMeta `json:"enc"`
	CiphertextB64 string         `json:"ciphertext_b64"`
}

// seal <plaintext>: encrypt under the lease of the flagged tuple.
func sealCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seal <plaintext>",
		Short: "Encrypt a payload under a lease",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			codec, err := crypto.NewCodec(appCtx.Config.Session.Scheme)
			if err != nil {
				return err
			}
			req, _, key, err := fetchKey(cmd)
			if err != nil {
				return err
			}
			defer key.Destroy()

			ct, em, err := codec.Encrypt(key, []byte(args[0]), string(req.Purpose), nil)
			if err != nil {
				return err
			}
			return json.NewEncoder(cmd.OutOrStdout()).Encode(sealed{Enc: em, CiphertextB64: crypto.B64(ct)})
		},
	}
	leaseFlags(cmd)
	return cmd
}

// open [sealed-json]: decrypt the output of seal, read from stdin when no
// argument is given.
func openCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "open [sealed-json]",
		Short: "Decrypt a payload produced by seal",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var r io.Reader = cmd.InOrStdin()
			if len(args) == 1 {
				r = strings.NewReader(args[0])
			}
			var in sealed
			if err := json.NewDecoder(r).Decode(&in); err != nil {
				return fmt.Errorf("%w: %v", domain.ErrEncoding, err)
			}
			ct, err := crypto.FromB64(in.CiphertextB64)
			if err != nil {
				return err
			}
			req, _, key, err := fetchKey(cmd)
			if err != nil {
				return err
			}
			defer key.Destroy()

			aad := in.Enc.AAD
			if aad == "" {
				aad = string(req.Purpose)
			}
			pt, err := new(crypto.Codec).Decrypt(key, in.Enc, ct, aad)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(pt))
			return err
		},
	}
	leaseFlags(cmd)
	return cmd
}
