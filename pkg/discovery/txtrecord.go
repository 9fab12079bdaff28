package discovery

import (
	"fmt"
	"sort"
	"strings"

	"github.com/iotdm/iotdm-go/pkg/version"
)

// TXTRecordMap holds TXT key/value pairs.
type TXTRecordMap map[string]string

// EncodeServerTXT builds the TXT records a server advertises.
func EncodeServerTXT(info *ServerInfo) TXTRecordMap {
	txt := TXTRecordMap{TXTKeyVersion: info.Version}
	if info.Binding != "" {
		txt[TXTKeyBinding] = info.Binding
	}
	if info.TokenAuth {
		txt[TXTKeyAuth] = "jwt"
	}
	return txt
}

// DecodeServerTXT parses server TXT records. The advertised version must
// share the client's major version.
func DecodeServerTXT(txt TXTRecordMap) (*ServerInfo, error) {
	v, ok := txt[TXTKeyVersion]
	if !ok || v == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingTXT, TXTKeyVersion)
	}
	parsed, err := version.Parse(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedServer, err)
	}
	if !version.MustParse(version.Current).Compatible(parsed) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedServer, v)
	}
	return &ServerInfo{
		Version:   v,
		Binding:   txt[TXTKeyBinding],
		TokenAuth: txt[TXTKeyAuth] == "jwt",
	}, nil
}

// TXTRecordsToStrings converts a TXTRecordMap to sorted "key=value" strings.
func TXTRecordsToStrings(txt TXTRecordMap) []string {
	result := make([]string, 0, len(txt))
	for k, v := range txt {
		result = append(result, k+"="+v)
	}
	sort.Strings(result)
	return result
}

// StringsToTXTRecords parses "key=value" strings into a TXTRecordMap.
func StringsToTXTRecords(strs []string) TXTRecordMap {
	txt := make(TXTRecordMap)
	for _, s := range strs {
		k, v, _ := strings.Cut(s, "=")
		if k != "" {
			// A key without value is a boolean flag.
			txt[k] = v
		}
	}
	return txt
}
