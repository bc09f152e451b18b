package nlpmodel

import "testing"

func TestKindFromLetter(t *testing.T) {
	cases := map[string]RegisterKind{
		"S": KindStatus,
		"T": KindTransmit,
		"R": KindReceive,
		"O": KindOther,
		"D": KindDmaChannel,
		"L": KindMemMapped,
	}
	for letter, want := range cases {
		got, ok := kindFromLetter(letter)
		if !ok || got != want {
			t.Errorf("kindFromLetter(%q) = %v,%v want %v,true", letter, got, ok, want)
		}
	}
	if _, ok := kindFromLetter("Z"); ok {
		t.Error("kindFromLetter(\"Z\") should fail")
	}
}

func TestBitBandTarget(t *testing.T) {
	word, bit := BitBandTarget(0x42000000)
	if word != 0x40000000 || bit != 0 {
		t.Errorf("got word=0x%x bit=%d, want 0x40000000,0", word, bit)
	}
	word, bit = BitBandTarget(0x42000084)
	if word != 0x40000004 || bit != 1 {
		t.Errorf("got word=0x%x bit=%d, want 0x40000004,1", word, bit)
	}
}

func TestIsBitBandAlias(t *testing.T) {
	if !IsBitBandAlias(BitBandAliasStart) || !IsBitBandAlias(BitBandAliasEnd) {
		t.Error("boundary addresses should be in the bit-band window")
	}
	if IsBitBandAlias(BitBandAliasStart - 4) {
		t.Error("address just below the window should not be a bit-band alias")
	}
}
