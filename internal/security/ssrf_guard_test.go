package security

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNewSafeClient(t *testing.T) {
	timeout := 5 * time.Second
	client := NewSafeClient(timeout)
	if client == nil {
		t.Fatal("NewSafeClient() returned nil")
	}
	if client.Timeout != timeout {
		t.Errorf("Timeout = %v, want %v", client.Timeout, timeout)
	}
	if client.Transport == nil || client.Transport == http.DefaultTransport {
		t.Error("safeurl のTransportが設定されていない")
	}
}

// httptestサーバーは127.0.0.1で起動されるため、safeurlがブロックする。
func TestNewSafeClient_BlocksLoopback(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	if _, err := NewSafeClient(5 * time.Second).Get(ts.URL); err == nil {
		t.Fatal("ループバック宛てのリクエストがブロックされなかった")
	}
}

func TestValidateURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"公開URL", "https://resultats.example.org/licencie", false},
		{"HTTP", "http://resultats.example.org/licencie", false},
		{"公開IP", "https://203.0.113.10/", false},
		{"空文字", "", true},
		{"不正なスキーム", "ftp://resultats.example.org/", true},
		{"fileスキーム", "file:///etc/passwd", true},
		{"ホストなし", "https:///path", true},
		{"プライベートIP", "http://10.0.0.5/", true},
		{"プライベートIP 192.168", "http://192.168.1.1/", true},
		{"ループバック", "http://127.0.0.1:8080/", true},
		{"メタデータIP", "http://169.254.169.254/latest/meta-data", true},
		{"IPv6ループバック", "http://[::1]/", true},
		{"localhost", "http://LocalHost/", true},
		{"パース不能", "http://[::1", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateURL(tt.url)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateURL(%q) err = %v, wantErr %v", tt.url, err, tt.wantErr)
			}
		})
	}
}
