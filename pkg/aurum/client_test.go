package aurum

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testOutput = `<?xml version="1.0" encoding="UTF-8"?>
<output>
  <powerBattery value="0.00" />
  <counterOutBattery value="12.345" />
  <powerSolar value="120" />
  <powerSolar value="80" />
  <smartMeterTimestamp value="210325143000W" />
  <counterGas value="" />
  <rateGas value="0.12" valid="0" />
</output>`

func testServer(t *testing.T, status int, body string) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != OUTPUT_PATH {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestUpdateDataNumbersReadingsByPosition(t *testing.T) {

	assert := assert.New(t)
	require := require.New(t)

	srv := testServer(t, http.StatusOK, testOutput)
	client := NewClient(srv.URL)

	require.NoError(client.UpdateData(context.Background()))

	data := client.GetAurumData()
	require.Len(data, 7)
	assert.Equal(NumberValue(0), data[1]["powerBattery"])
	assert.Equal(NumberValue(12.345), data[2]["counterOutBattery"])
	assert.Equal(NumberValue(120), data[3]["powerSolar"])
	assert.Equal(NumberValue(80), data[4]["powerSolar"])
	assert.Equal(TextValue("210325143000W"), data[5]["smartMeterTimestamp"])
	assert.True(data[6]["counterGas"].IsAbsent(), "empty value is absent")
	assert.True(data[7]["rateGas"].IsAbsent(), "invalid value is absent")
}

func TestNonFiniteValuesAreAbsent(t *testing.T) {

	assert := assert.New(t)

	srv := testServer(t, http.StatusOK, `<output>
  <powerSolar value="NaN" />
  <powerWind value="inf" />
  <powerGrid value="-Infinity" />
  <powerBattery value="1e3" />
  <rateGas value="0.12" valid="1" />
</output>`)
	client := NewClient(srv.URL)
	require.NoError(t, client.UpdateData(context.Background()))

	data := client.GetAurumData()
	require.Len(t, data, 5)
	assert.True(data[1]["powerSolar"].IsAbsent())
	assert.True(data[2]["powerWind"].IsAbsent())
	assert.True(data[3]["powerGrid"].IsAbsent())
	assert.Equal(NumberValue(1000), data[4]["powerBattery"])
	assert.Equal(NumberValue(0.12), data[5]["rateGas"], "valid other than 0 keeps the value")
}

func TestGetAurumDataReturnsCopy(t *testing.T) {

	srv := testServer(t, http.StatusOK, testOutput)
	client := NewClient(srv.URL)
	require.NoError(t, client.UpdateData(context.Background()))

	data := client.GetAurumData()
	data[1]["powerBattery"] = NumberValue(999)
	delete(data, 2)

	again := client.GetAurumData()
	assert.Equal(t, NumberValue(0), again[1]["powerBattery"])
	assert.Contains(t, again, 2)
}

func TestGetAurumDataEmptyBeforeUpdate(t *testing.T) {
	client := NewClient("127.0.0.1")
	assert.Empty(t, client.GetAurumData())
}

func TestUpdateDataMissingXML(t *testing.T) {

	assert := assert.New(t)

	empty := testServer(t, http.StatusOK, `<output></output>`)
	err := NewClient(empty.URL).UpdateData(context.Background())
	assert.ErrorIs(err, ErrXMLDataMissing)

	garbage := testServer(t, http.StatusOK, `not xml at all`)
	err = NewClient(garbage.URL).UpdateData(context.Background())
	assert.ErrorIs(err, ErrXMLDataMissing)
}

func TestUpdateDataKeepsPreviousDataOnError(t *testing.T) {

	body := testOutput
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	require.NoError(t, client.UpdateData(context.Background()))

	body = `<output/>`
	assert.ErrorIs(t, client.UpdateData(context.Background()), ErrXMLDataMissing)
	assert.Len(t, client.GetAurumData(), 7)
}

func TestUpdateDataHTTPError(t *testing.T) {
	srv := testServer(t, http.StatusInternalServerError, "")
	err := NewClient(srv.URL).UpdateData(context.Background())
	assert.ErrorIs(t, err, ErrAurum)
}

func TestUpdateDataTimeout(t *testing.T) {

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := NewClient(srv.URL).UpdateData(ctx)
	assert.ErrorIs(t, err, ErrAurum)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestConnect(t *testing.T) {

	assert := assert.New(t)

	ok := testServer(t, http.StatusOK, testOutput)
	connected, err := NewClient(ok.URL).Connect(context.Background())
	assert.NoError(err)
	assert.True(connected)

	empty := testServer(t, http.StatusOK, `<output/>`)
	connected, err = NewClient(empty.URL).Connect(context.Background())
	assert.NoError(err)
	assert.False(connected)

	unreachable := NewClient("127.0.0.1:1", WithTimeout(500*time.Millisecond))
	connected, err = unreachable.Connect(context.Background())
	assert.ErrorIs(err, ErrAurum)
	assert.False(connected)
}

func TestBaseURL(t *testing.T) {
	assert.Equal(t, "http://192.168.1.20", baseURL("192.168.1.20"))
	assert.Equal(t, "http://meter.local:8080", baseURL(" meter.local:8080/ "))
	assert.Equal(t, "https://meter.local", baseURL("https://meter.local/"))
}
