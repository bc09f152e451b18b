package nlpmodel

import "testing"

func TestRegisterStoreAddressCorrect(t *testing.T) {
	s := NewRegisterStore()
	s.Insert(newRegister(KindOther, 0x40000000, 0, 32))
	s.Insert(newRegister(KindOther, 0x40000010, 0, 32))

	if corrected, shift := s.AddressCorrect(0x40000010); corrected != 0x40000010 || shift != 0 {
		t.Errorf("declared address should correct to itself, got 0x%x/%d", corrected, shift)
	}
	corrected, shift := s.AddressCorrect(0x40000012)
	if corrected != 0x40000010 || shift != 16 {
		t.Errorf("got 0x%x/%d, want 0x40000010/16", corrected, shift)
	}
	corrected, _ = s.AddressCorrect(0x3FFFFFFF)
	if corrected != 0x40000000 {
		t.Errorf("address below every declared register should fall back to the lowest one, got 0x%x", corrected)
	}
}

func TestRegisterStoreRxFifo(t *testing.T) {
	s := NewRegisterStore()
	s.Insert(newRegister(KindReceive, 0x40000000, 0, 32))

	s.PushRx(0x40000000, []byte{1, 2, 3}, 24)
	if b := s.ReadRxByte(0x40000000); b != 1 {
		t.Fatalf("got %d want 1", b)
	}
	if r := s.Get(0x40000000); r.RSize != 16 {
		t.Errorf("RSize after one pop = %d, want 16", r.RSize)
	}

	// PushRx is a no-op while the FIFO still holds bytes.
	s.PushRx(0x40000000, []byte{9, 9}, 16)
	if r := s.Get(0x40000000); len(r.RValue) != 2 || r.RValue[0] != 2 {
		t.Errorf("PushRx should not overwrite a non-empty FIFO, got %v", r.RValue)
	}
}

func TestRegisterStoreWriteTx(t *testing.T) {
	s := NewRegisterStore()
	s.Insert(newRegister(KindTransmit, 0x40000000, 0, 32))
	s.WriteTx(0x40000000, 0xAA, 1)
	s.WriteTx(0x40000000, 0xFA, 1)
	if r := s.Get(0x40000000); r.TValue != 0xAAFA {
		t.Errorf("TValue = 0x%x, want 0xAAFA", r.TValue)
	}
}

func TestRegisterStoreClone(t *testing.T) {
	s := NewRegisterStore()
	s.Insert(newRegister(KindReceive, 0x40000000, 0, 32))
	s.PushRx(0x40000000, []byte{1, 2}, 16)

	clone := s.Clone()
	clone.ReadRxByte(0x40000000)

	if orig := s.Get(0x40000000); len(orig.RValue) != 2 {
		t.Errorf("clone mutation leaked into original: %v", orig.RValue)
	}
	if c := clone.Get(0x40000000); len(c.RValue) != 1 {
		t.Errorf("clone RX pop did not apply, got %v", c.RValue)
	}
}

func TestPeripheralStatePendingInterrupt(t *testing.T) {
	st := NewPeripheralState()
	if st.PendingInterrupt() {
		t.Fatal("fresh state should have no pending interrupt")
	}
	st.ExitInterrupt[5] = 1
	if !st.PendingInterrupt() {
		t.Fatal("irq 5 should be pending")
	}
	st.InterruptFreq[5] = 2
	if st.PendingInterrupt() {
		t.Fatal("an irq emitted twice should no longer count as pending")
	}
}

func TestPeripheralStateClone(t *testing.T) {
	st := NewPeripheralState()
	st.ExitInterrupt[1] = 3
	clone := st.Clone()
	clone.ExitInterrupt[1] = 99
	if st.ExitInterrupt[1] != 3 {
		t.Error("mutating the clone's IRQ map should not affect the original")
	}
}
