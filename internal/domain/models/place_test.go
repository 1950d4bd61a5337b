package models

import "testing"

func TestHasWellFormedPlaceID(t *testing.T) {
	tests := []struct {
		name string
		hint PlaceHint
		want bool
	}{
		{"ChIJ id", PlaceIDHint("ChIJN1t_tDeuEmsRUsoyG83frY4"), true},
		{"short ChIJ id", PlaceIDHint("ChIJdirect"), true},
		{"GhIJ id", PlaceIDHint("GhIJQWDl0CIeQUARxks3icF8U8A"), true},
		{"Ei address id", PlaceIDHint("EiRNYXJpbmVyIERyLCBTZWF0dGxlLCBXQSA5ODEwNCwgVVNB"), true},
		{"feature id", PlaceIDHint("0x60188bbd9009ec09:0x481a93f0d2a409dd"), false},
		{"hex prefix without colon", PlaceIDHint("0x60188bbd9009ec09481a93f0d2a4"), false},
		{"numeric cid", PlaceIDHint("12345678901234567890123"), false},
		{"too short", PlaceIDHint("abc"), false},
		{"contains space", PlaceIDHint("GhIJ QWDl0CIeQUARxks3icF8U8A"), false},
		{"empty", PlaceIDHint(""), false},
		{"not a place id hint", QueryHint("ChIJN1t_tDeuEmsRUsoyG83frY4"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.hint.HasWellFormedPlaceID(); got != tt.want {
				t.Errorf("HasWellFormedPlaceID(%v) = %v, want %v", tt.hint, got, tt.want)
			}
		})
	}
}
