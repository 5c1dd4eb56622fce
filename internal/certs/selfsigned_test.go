package certs

import (
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"testing"
	"time"
)

func TestGenerate(t *testing.T) {
	t.Parallel()
	cert, err := Generate(24*time.Hour, "media.local", "10.0.0.5")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if len(cert.TLSCert.Certificate) == 0 {
		t.Fatal("no certificate data")
	}

	x509Cert, err := x509.ParseCertificate(cert.TLSCert.Certificate[0])
	if err != nil {
		t.Fatalf("failed to parse cert: %v", err)
	}

	if x509Cert.NotAfter.Before(time.Now()) {
		t.Error("cert is already expired")
	}

	expected := sha256.Sum256(cert.TLSCert.Certificate[0])
	if cert.Fingerprint != expected {
		t.Error("fingerprint mismatch")
	}
	if got := cert.FingerprintHex(); got != hex.EncodeToString(expected[:]) {
		t.Errorf("FingerprintHex: got %q", got)
	}

	names := map[string]bool{}
	for _, n := range x509Cert.DNSNames {
		names[n] = true
	}
	if !names["localhost"] || !names["media.local"] {
		t.Errorf("DNS names: got %v", x509Cert.DNSNames)
	}

	foundIP := false
	for _, ip := range x509Cert.IPAddresses {
		if ip.String() == "10.0.0.5" {
			foundIP = true
		}
	}
	if !foundIP {
		t.Errorf("IP addresses: got %v, want 10.0.0.5 included", x509Cert.IPAddresses)
	}
}

func TestGenerateDefaultValidity(t *testing.T) {
	t.Parallel()
	cert, err := Generate(0)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	x509Cert, err := x509.ParseCertificate(cert.TLSCert.Certificate[0])
	if err != nil {
		t.Fatalf("failed to parse cert: %v", err)
	}

	validity := x509Cert.NotAfter.Sub(x509Cert.NotBefore)
	if validity != DefaultValidity {
		t.Errorf("validity: got %v, want %v", validity, DefaultValidity)
	}
}
