package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParsePeers_SplitsPubkeyAndMultiaddr(t *testing.T) {
	infos, addrs, err := parsePeers("abc@/ip4/10.0.0.1/tcp/4001,def@/ip4/10.0.0.2/tcp/4001")
	require.NoError(t, err)
	require.Len(t, infos, 2)
	require.Equal(t, "abc", infos[0].PublicKeyBase58)
	require.Equal(t, "/ip4/10.0.0.1/tcp/4001", infos[0].Multiaddress)
	require.Equal(t, []string{"/ip4/10.0.0.1/tcp/4001", "/ip4/10.0.0.2/tcp/4001"}, addrs)
}

func TestParsePeers_EmptyStringYieldsNothing(t *testing.T) {
	infos, addrs, err := parsePeers("  ")
	require.NoError(t, err)
	require.Nil(t, infos)
	require.Nil(t, addrs)
}

func TestParsePeers_RejectsMalformedEntry(t *testing.T) {
	_, _, err := parsePeers("not-a-valid-entry")
	require.Error(t, err)
}

func TestParseConfig_AppliesDefaults(t *testing.T) {
	cfg, err := parseConfig(nil)
	require.NoError(t, err)
	require.Equal(t, "./ephemera-data", cfg.DataDir)
	require.Equal(t, ":7000", cfg.HTTPAddr)
	require.Empty(t, cfg.Peers)
}
