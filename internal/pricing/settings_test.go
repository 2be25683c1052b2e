package pricing

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMarkupSettingsJSON(t *testing.T) {
	data, err := json.Marshal(DefaultSettings())
	require.NoError(t, err)
	require.JSONEq(t, `{"flat":1.5,"percent":0.05,"publicSurcharge":2,"minProfit":1}`, string(data))

	var got MarkupSettings
	require.NoError(t, json.Unmarshal([]byte(`{"flat":"2","percent":0.1,"publicSurcharge":3,"minProfit":0.5}`), &got))
	require.True(t, got.Flat.Equal(dec("2")))
	require.True(t, got.Percent.Equal(dec("0.1")))
}

func TestMarkupSettingsRejectsIncomplete(t *testing.T) {
	var got MarkupSettings
	err := json.Unmarshal([]byte(`{"flat":2}`), &got)
	require.ErrorIs(t, err, ErrInvalidSettings)

	err = json.Unmarshal([]byte(`{"flat":-2,"percent":0.1,"publicSurcharge":3,"minProfit":0.5}`), &got)
	require.ErrorIs(t, err, ErrInvalidSettings)
}

func TestParseOverridesSkipsBadEntries(t *testing.T) {
	o := ParseOverrides(map[string]string{"1": "5.50", "2": "abc", "3": "0", " ": "4"})
	require.Equal(t, []string{"1"}, o.IDs())
	require.Equal(t, map[string]string{"1": "5.50"}, o.Encode())
}
