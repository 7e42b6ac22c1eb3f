package transport

import (
	"fmt"

	"github.com/Keeper-Security/secrets-manager-sub005/internal/crypto"
)

// DefaultKeyID selects which embedded server public key seals the
// transmission key when the caller does not pin one.
const DefaultKeyID = "7"

// serverPublicKeys holds the raw uncompressed P-256 points the service
// publishes, keyed by the id echoed back in the PublicKeyId header. New
// deployments rotate in under fresh ids; old ids stay for older servers.
var serverPublicKeys = map[string]string{
	"1":  "BKjkn2SCpLFOA_uVDB_ICXnvag4lJsLBYS-V1FxkxoXV4rCrnnOAFDff02XpNoGdOtjHCGIMzpj48FwG7gcd1qU",
	"2":  "BKuI8_6weyqpo6jOI_4kQS0V13FT6cnG53X-4zNC7iJjRXprTIObl5MM3x6TirFAGgylXu6JYLUX4MXZTFOQqeE",
	"3":  "BO-fYgKZbuif7yCQ-e18CkqPHtju_pnHz84qjNCHFYRDRPD8akHXKBpt3ABh1CF9aDOH_BozP8xSTYVmJLvqRGM",
	"4":  "BML5JAfcFtl4wjILHOm-Xw82duadALMBMZQ4Bq0g3p-L-7lYhMZ8c_S9NFSAYCMEK9YawHWk46eGJ7ISNCsRTGM",
	"5":  "BCds6AO3VPxZzVmF13ITuunEE6TgcrPziF2plzpb3Z792bhZG8nUwnyeuBoflS-98yZfDnElM5U5tegmXb0hhkM",
	"6":  "BF0BD6sCTVktWvI5KsNUt1SEST6_ui661Us7KGAmTgBDyLNoqxMWW6WIB5CSnjrhO7YMhbyqm-9YSTdYu1ikjtY",
	"7":  "BBv3-391oRUccBAOgeQlyv-ZKw08NiwFGZreeQ72XhV_gESnZp9_FlarcohGpmxe-zXjaI8fcPeXORQ9iq7wW3c",
	"8":  "BNFUfKGwrj1irgpK2Q-u6EUPDOQrS-h6nA0XkUz-fLL-SBAfK48f6vezJEo8o3B5nRpKwwY32txbX7pI00Ed2SM",
	"9":  "BNrFcF4cgnM37W3iCHrQL90UgpQud6Tfw6JWQQs2LUOdys_zLm16OSU3PhVw4Gjix-GMV4SbjKoWF6uk8YKOO0s",
	"10": "BDSpNskwvQ4JIIZwIqplVncAGRxmfb7u4Wa_AkusGU8GSqnqOJ_HzpHOSAj5SFCJsGLo3whbJgW8CByobjMWqc4",
}

// ServerPublicKey resolves a key id to the raw point bytes.
func ServerPublicKey(id string) ([]byte, error) {
	enc, ok := serverPublicKeys[id]
	if !ok {
		return nil, fmt.Errorf("transport: unknown server public key id %q", id)
	}
	return crypto.DecodeBase64(enc)
}
