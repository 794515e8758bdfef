package entry

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEntryMarshalUnmarshalRoundTrip(t *testing.T) {
	e := Entry{
		DateTime: "2020-08-23T00:00:00",
		Key:      RawValue(`"k"`),
		Value:    RawValue(`"v"`),
	}
	data, err := json.Marshal(e)
	require.NoError(t, err)
	require.Equal(t, `["2020-08-23T00:00:00","k","v"]`, string(data))

	var decoded Entry
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, e, decoded)
}

func TestEntryMarshalNilFields(t *testing.T) {
	e := Entry{DateTime: "2020-08-23T00:00:00"}
	data, err := json.Marshal(e)
	require.NoError(t, err)
	require.Equal(t, `["2020-08-23T00:00:00",null,null]`, string(data))
}

func TestEntryUnmarshalRejectsWrongLength(t *testing.T) {
	var e Entry
	err := json.Unmarshal([]byte(`["2020-08-23T00:00:00","k"]`), &e)
	require.Error(t, err)
}

func TestEntryWithPathMarshalUnmarshalRoundTrip(t *testing.T) {
	ewp := EntryWithPath{
		Path: []string{"a", "unicode ☺"},
		Entry: Entry{
			DateTime: "2020-08-23T00:00:00",
			Key:      RawValue(`"k"`),
			Value:    RawValue(`"v"`),
		},
	}
	data, err := json.Marshal(ewp)
	require.NoError(t, err)

	var decoded EntryWithPath
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, ewp, decoded)
}

func TestNewerGreaterDateTimeWinsRegardlessOfValue(t *testing.T) {
	older := Entry{DateTime: "2020-08-23T00:00:00", Value: RawValue(`"v"`)}
	newer := Entry{DateTime: "2020-08-24T00:00:00", Value: RawValue(`"v"`)}
	require.True(t, Newer(newer, older))
	require.False(t, Newer(older, newer))
}

func TestNewerEqualDateTimeTiesBrokenByValue(t *testing.T) {
	a := Entry{DateTime: "2020-08-23T00:00:01", Value: RawValue(`"a"`)}
	b := Entry{DateTime: "2020-08-23T00:00:01", Value: RawValue(`"b"`)}
	require.True(t, Newer(b, a))
	require.False(t, Newer(a, b))
}

func TestNewerIdenticalIsIdempotent(t *testing.T) {
	a := Entry{DateTime: "2020-08-23T00:00:01", Value: RawValue(`"v"`)}
	b := Entry{DateTime: "2020-08-23T00:00:01", Value: RawValue(`"v"`)}
	require.False(t, Newer(a, b))
	require.False(t, Newer(b, a))
}

func TestKeyIdentityDistinguishesPaths(t *testing.T) {
	id1 := KeyIdentity([]string{"a", "b"}, RawValue(`"k"`))
	id2 := KeyIdentity([]string{"a"}, RawValue(`"b\"k\""`))
	require.NotEqual(t, id1, id2)
}
