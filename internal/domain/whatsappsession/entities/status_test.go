package entities

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeStatus(t *testing.T) {
	tests := []struct {
		raw  string
		want Status
	}{
		{"connected", StatusConnected},
		{"CONNECTED", StatusConnected},
		{"disconnected", StatusDisconnected},
		{"qrcode", StatusAwaitingQR},
		{"SCAN_QR_CODE", StatusAwaitingQR},
		{"conflict", StatusConnecting},
		{"PAIRING", StatusConnecting},
		{"connecting", StatusConnecting},
		{"TIMEOUT", StatusConflict},
		{"timeout", StatusConflict},
		{"destroyed", StatusDisconnected},
		{"logout", StatusDisconnected},
		{" Connected ", StatusConnected},
		{"", StatusDisconnected},
		{"banana", StatusDisconnected},
		{"AWAITING_QR", StatusDisconnected},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeStatus(tt.raw))
		})
	}
}

func TestIsTerminalRawStatus(t *testing.T) {
	for _, raw := range []string{"destroyed", "DISCONNECTED", "logout"} {
		assert.True(t, IsTerminalRawStatus(raw), raw)
	}
	for _, raw := range []string{"connected", "timeout", "qrcode", ""} {
		assert.False(t, IsTerminalRawStatus(raw), raw)
	}
}

func TestSessionPatch_Normalize(t *testing.T) {
	connected := StatusConnected
	awaiting := StatusAwaitingQR
	qr := "ABC"

	p := SessionPatch{Status: &connected, QRCode: &qr}.Normalize()
	assert.Equal(t, "", *p.QRCode)

	p = SessionPatch{Status: &awaiting, QRCode: &qr}.Normalize()
	assert.Equal(t, "ABC", *p.QRCode)

	p = SessionPatch{QRCode: &qr}.Normalize()
	assert.Nil(t, p.Status)
	assert.Equal(t, "ABC", *p.QRCode)

	assert.True(t, SessionPatch{}.IsEmpty())
}

func TestBridgeReply_QR(t *testing.T) {
	tests := []struct {
		name  string
		reply *BridgeReply
		want  string
	}{
		{"nil", nil, ""},
		{"top level", &BridgeReply{QRCode: "top"}, "top"},
		{"data qrcode", &BridgeReply{Data: []byte(`{"qrcode":"a"}`)}, "a"},
		{"data qr", &BridgeReply{Data: []byte(`{"qr":"b"}`)}, "b"},
		{"data base64", &BridgeReply{Data: []byte(`{"base64":"c"}`)}, "c"},
		{"blank", &BridgeReply{Data: []byte(`{"qr":"  "}`)}, ""},
		{"array data", &BridgeReply{Data: []byte(`[1,2]`)}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.reply.QR())
		})
	}
}

func TestBridgeReply_RawStatus(t *testing.T) {
	assert.Equal(t, "CONNECTED", (&BridgeReply{Data: []byte(`{"status":"CONNECTED"}`)}).RawStatus())
	assert.Equal(t, "qrcode", (&BridgeReply{Status: "qrcode"}).RawStatus())
	assert.Equal(t, "", (*BridgeReply)(nil).RawStatus())
}
