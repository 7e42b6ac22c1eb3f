package totp

import (
	"encoding/base32"
	"strings"
	"testing"
	"time"
)

// RFC 6238 appendix B secrets: the ASCII seed repeated to the digest size.
func rfcSecret(size int) string {
	seed := "12345678901234567890"
	b := make([]byte, 0, size)
	for len(b) < size {
		b = append(b, seed...)
	}
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(b[:size])
}

func TestRFC6238Vectors(t *testing.T) {
	cases := []struct {
		unix      int64
		algorithm string
		size      int
		want      string
	}{
		{59, "SHA1", 20, "94287082"},
		{59, "SHA256", 32, "46119246"},
		{59, "SHA512", 64, "90693936"},
		{1111111109, "SHA1", 20, "07081804"},
		{1234567890, "SHA256", 32, "91819424"},
		{2000000000, "SHA512", 64, "38618901"},
		{20000000000, "SHA1", 20, "65353130"},
	}
	for _, tc := range cases {
		k := &Key{
			Secret:    rfcSecret(tc.size),
			Algorithm: tc.algorithm,
			Digits:    8,
			Period:    DefaultPeriod,
		}
		code, err := k.At(time.Unix(tc.unix, 0))
		if err != nil {
			t.Fatalf("%s at %d: %v", tc.algorithm, tc.unix, err)
		}
		if code.Value != tc.want {
			t.Errorf("%s at %d: code %s, want %s", tc.algorithm, tc.unix, code.Value, tc.want)
		}
	}
}

func TestParseURL(t *testing.T) {
	k, err := ParseURL("otpauth://totp/Keeper:ops%40example.com?secret=JBSWY3DPEHPK3PXP&issuer=Keeper&algorithm=SHA256&digits=7&period=60")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if k.Issuer != "Keeper" || k.Account != "ops@example.com" {
		t.Fatalf("label: issuer %q account %q", k.Issuer, k.Account)
	}
	if k.Secret != "JBSWY3DPEHPK3PXP" || k.Algorithm != "SHA256" || k.Digits != 7 || k.Period != 60*time.Second {
		t.Fatalf("params: %+v", k)
	}
}

func TestParseURLDefaults(t *testing.T) {
	k, err := ParseURL("otpauth://totp/acct?secret=jbswy3dpehpk3pxp")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if k.Algorithm != "SHA1" || k.Digits != DefaultDigits || k.Period != DefaultPeriod {
		t.Fatalf("defaults: %+v", k)
	}
	if k.Secret != "JBSWY3DPEHPK3PXP" {
		t.Fatalf("secret not upper-cased: %q", k.Secret)
	}
}

func TestParseURLErrors(t *testing.T) {
	cases := []string{
		"https://totp/a?secret=JBSWY3DP",
		"otpauth://hotp/a?secret=JBSWY3DP",
		"otpauth://totp/a",
		"otpauth://totp/a?secret=JBSWY3DP&algorithm=MD5",
		"otpauth://totp/a?secret=JBSWY3DP&digits=4",
		"otpauth://totp/a?secret=JBSWY3DP&period=0",
	}
	for _, in := range cases {
		if _, err := ParseURL(in); err == nil {
			t.Errorf("parse %q succeeded", in)
		}
	}
}

func TestCodeTimeLeft(t *testing.T) {
	k := &Key{Secret: rfcSecret(20), Algorithm: "SHA1", Digits: 6, Period: DefaultPeriod}
	code, err := k.At(time.Unix(59, 0))
	if err != nil {
		t.Fatalf("at: %v", err)
	}
	if code.TimeLeft != 1*time.Second {
		t.Fatalf("time left %v, want 1s", code.TimeLeft)
	}
	if code.Period != DefaultPeriod {
		t.Fatalf("period %v", code.Period)
	}
}

func TestGenerateURL(t *testing.T) {
	code, err := GenerateURL("otpauth://totp/a?secret="+rfcSecret(20)+"&digits=8", time.Unix(59, 0))
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if code.Value != "94287082" {
		t.Fatalf("code %s", code.Value)
	}
	if len(code.Value) != 8 || strings.TrimLeft(code.Value, "0123456789") != "" {
		t.Fatalf("not an 8-digit code: %q", code.Value)
	}
}

func TestBadSecret(t *testing.T) {
	k := &Key{Secret: "not base32!!", Algorithm: "SHA1", Digits: 6, Period: DefaultPeriod}
	if _, err := k.At(time.Unix(59, 0)); err == nil {
		t.Fatal("bad secret generated a code")
	}
}
