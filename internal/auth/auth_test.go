package auth

import (
	"encoding/base64"
	"net/http"
	"testing"
)

func TestHeaderValue(t *testing.T) {
	tests := []struct {
		name   string
		auth   *Authorization
		want   string
		wantOK bool
	}{
		{
			name:   "bearer",
			auth:   Bearer("T"),
			want:   "Bearer T",
			wantOK: true,
		},
		{
			name:   "basic",
			auth:   Basic("u", "p"),
			want:   "Basic " + base64.StdEncoding.EncodeToString([]byte("u:p")),
			wantOK: true,
		},
		{
			name:   "plain",
			auth:   Plain("secret"),
			want:   "Plain secret",
			wantOK: true,
		},
		{
			name:   "absent",
			auth:   nil,
			want:   "",
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok, err := tt.auth.HeaderValue()
			if err != nil {
				t.Fatalf("HeaderValue() error: %v", err)
			}
			if ok != tt.wantOK {
				t.Errorf("ok = %v, want %v", ok, tt.wantOK)
			}
			if got != tt.want {
				t.Errorf("HeaderValue() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestHeaderValue_UnknownType(t *testing.T) {
	a := &Authorization{Type: "digest", Token: "x"}
	if _, _, err := a.HeaderValue(); err == nil {
		t.Error("expected error for unknown type")
	}
}

func TestEncodeBasic(t *testing.T) {
	// "Aladdin:open sesame" is the RFC 7617 example.
	got := EncodeBasic("Aladdin", "open sesame")
	want := "QWxhZGRpbjpvcGVuIHNlc2FtZQ=="
	if got != want {
		t.Errorf("EncodeBasic() = %q, want %q", got, want)
	}
}

func TestApply(t *testing.T) {
	h := http.Header{}
	if err := Bearer("abc").Apply(h); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if got := h.Get("Authorization"); got != "Bearer abc" {
		t.Errorf("Authorization = %q, want %q", got, "Bearer abc")
	}

	empty := http.Header{}
	var none *Authorization
	if err := none.Apply(empty); err != nil {
		t.Fatalf("Apply(nil) failed: %v", err)
	}
	if _, ok := empty["Authorization"]; ok {
		t.Error("nil authorization should not set a header")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		auth    *Authorization
		wantErr string
	}{
		{"nil", nil, ""},
		{"bearer ok", Bearer("t"), ""},
		{"bearer missing token", &Authorization{Type: TypeBearer}, "bearer authorization requires a token"},
		{"plain missing token", &Authorization{Type: TypePlain}, "plain authorization requires a token"},
		{"basic ok", Basic("u", ""), ""},
		{"basic missing username", &Authorization{Type: TypeBasic, Password: "p"}, "basic authorization requires a username"},
		{"unknown", &Authorization{Type: "x"}, `unknown authorization type "x"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.auth.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil || err.Error() != tt.wantErr {
				t.Errorf("Validate() error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}
