package device

import (
	"errors"
	"testing"
)

func TestNormalize(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in      string
		want    Kind
		wantErr bool
	}{
		{in: "", want: Auto},
		{in: "auto", want: Auto},
		{in: "CPU", want: CPU},
		{in: " cuda ", want: CUDA},
		{in: "tpu", wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			t.Parallel()
			got, err := Normalize(tc.in)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("%q accepted", tc.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("%q rejected: %v", tc.in, err)
			}
			if got != tc.want {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestAutoResolvesToAConcreteDevice(t *testing.T) {
	t.Parallel()

	dev, err := New(Auto)
	if err != nil {
		t.Fatalf("open auto device: %v", err)
	}
	if dev.Kind() == Auto {
		t.Fatal("auto did not resolve")
	}
}

func TestCUDAUnavailableInDefaultBuild(t *testing.T) {
	t.Parallel()

	if cudaEnabled {
		t.Skip("cuda build")
	}
	if _, err := New(CUDA); !errors.Is(err, ErrCUDAUnavailable) {
		t.Fatalf("got %v, want ErrCUDAUnavailable", err)
	}
}
