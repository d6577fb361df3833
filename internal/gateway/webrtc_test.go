package gateway

import "testing"

func TestIsWebRTCOfferDetectsAction(t *testing.T) {
	if !isWebRTCOffer([]byte(`{"action":"webrtcOffer","commandId":"1","offer":{"type":"offer","sdp":""}}`)) {
		t.Fatal("expected webrtcOffer action to be detected")
	}
	if isWebRTCOffer([]byte(`{"action":"start","commandId":"1"}`)) {
		t.Fatal("expected non-webrtcOffer action to be rejected")
	}
	if isWebRTCOffer([]byte(`not json`)) {
		t.Fatal("expected malformed JSON to be rejected, not misidentified as an offer")
	}
}
