package toml_test

import (
	"bytes"
	"fmt"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/BurntSushi/toml"
	itoml "github.com/influxdata/coreraft/toml"
	"github.com/stretchr/testify/require"
)

func TestSize_UnmarshalText(t *testing.T) {
	var s itoml.Size
	for _, test := range []struct {
		str  string
		want uint64
	}{
		{"1", 1},
		{"10", 10},
		{"100", 100},
		{"1k", 1 << 10},
		{"10k", 10 << 10},
		{"100k", 100 << 10},
		{"1K", 1 << 10},
		{"10K", 10 << 10},
		{"100K", 100 << 10},
		{"1m", 1 << 20},
		{"10m", 10 << 20},
		{"100m", 100 << 20},
		{"1M", 1 << 20},
		{"10M", 10 << 20},
		{"100M", 100 << 20},
		{"1g", 1 << 30},
		{"1G", 1 << 30},
		{"10g", 10 << 30},
		{fmt.Sprint(uint64(math.MaxUint64) - 1), math.MaxUint64 - 1},
	} {
		if err := s.UnmarshalText([]byte(test.str)); err != nil {
			t.Fatalf("unexpected error: %s", err)
		}
		if s != itoml.Size(test.want) {
			t.Fatalf("wanted: %d got: %d", test.want, s)
		}
	}

	for _, str := range []string{
		fmt.Sprintf("%dk", uint64(math.MaxUint64-1)),
		"10000000000000000000g",
		"abcdef",
		"1KB",
		"√m",
		"a1",
		"",
	} {
		if err := s.UnmarshalText([]byte(str)); err == nil {
			t.Fatalf("input should have failed: %s", str)
		}
	}
}

func TestDuration_RoundTrip(t *testing.T) {
	type config struct {
		Timeout itoml.Duration `toml:"timeout"`
		Limit   itoml.Size     `toml:"limit"`
	}

	var c config
	_, err := toml.Decode("timeout = \"1m30s\"\nlimit = \"8m\"\n", &c)
	require.NoError(t, err)
	require.Equal(t, 90*time.Second, time.Duration(c.Timeout))
	require.Equal(t, itoml.Size(8<<20), c.Limit)

	buf := new(bytes.Buffer)
	require.NoError(t, toml.NewEncoder(buf).Encode(&c))
	got := buf.String()
	if search := `timeout = "1m30s"`; !strings.Contains(got, search) {
		t.Fatalf("failed to find %s in:\n%s\n", search, got)
	}
}

func TestDuration_UnmarshalText_Empty(t *testing.T) {
	d := itoml.Duration(time.Second)
	require.NoError(t, d.UnmarshalText(nil))
	require.Equal(t, itoml.Duration(time.Second), d)
}
