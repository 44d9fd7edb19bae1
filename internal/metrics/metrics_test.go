package metrics

import "testing"

func TestRegister_NoPanic(t *testing.T) {
	Register()
	Register() // second call should be a no-op thanks to sync.Once
}

func TestFamiliesNonEmpty(t *testing.T) {
	if len(Families()) == 0 {
		t.Fatal("expected a non-empty family list")
	}
}
