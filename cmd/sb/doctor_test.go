package main

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/zulandar/switchboard/internal/config"
	"github.com/zulandar/switchboard/internal/operator"
	"github.com/zulandar/switchboard/internal/station"
	"github.com/zulandar/switchboard/internal/tool"
)

// newLiveDeployment spins up a real operator and one arithmetic station,
// registered and routable.
func newLiveDeployment(t *testing.T) (opURL string, stationSrv *httptest.Server) {
	t.Helper()

	op := operator.New(operator.Opts{
		Config: config.OperatorConfig{ProbeTimeoutSec: 2, QueryTimeoutSec: 5},
	})
	opSrv := httptest.NewServer(op.Handler())
	t.Cleanup(opSrv.Close)
	t.Cleanup(op.Close)

	tools, err := tool.NewSet(tool.NewArithmetic())
	if err != nil {
		t.Fatalf("NewSet: %v", err)
	}
	st, err := station.New(station.Opts{
		Config: config.StationConfig{WorkerID: "dr-1", OperatorURL: opSrv.URL},
		Tools:  tools,
	})
	if err != nil {
		t.Fatalf("station.New: %v", err)
	}
	stSrv := httptest.NewServer(st.Handler())
	t.Cleanup(stSrv.Close)

	payload := fmt.Sprintf(`{"worker_id":"dr-1","base_url":%q,"supported_tools":["arithmetic"]}`, stSrv.URL)
	resp, err := http.Post(opSrv.URL+"/register", "application/json", strings.NewReader(payload))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("register status = %d", resp.StatusCode)
	}
	return opSrv.URL, stSrv
}

func runDoctorCmd(t *testing.T, serverURL string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"doctor", "--server-url", serverURL})
	err := cmd.Execute()
	return buf.String(), err
}

func TestDoctorCmd_Flags(t *testing.T) {
	cmd := newDoctorCmd()
	if cmd.Use != "doctor" {
		t.Errorf("Use = %q, want %q", cmd.Use, "doctor")
	}
	urlFlag := cmd.Flags().Lookup("server-url")
	if urlFlag == nil {
		t.Fatal("expected --server-url flag")
	}
	if urlFlag.DefValue != "http://localhost:8000" {
		t.Errorf("--server-url default = %q", urlFlag.DefValue)
	}
}

func TestDoctor_AllChecksPass(t *testing.T) {
	opURL, _ := newLiveDeployment(t)

	out, err := runDoctorCmd(t, opURL)
	if err != nil {
		t.Fatalf("doctor failed: %v\n%s", err, out)
	}

	for _, want := range []string{
		"[PASS] Operator",
		"[PASS] Station dr-1",
		"[PASS] Tool arithmetic",
		"result: 2 add 2 = 4",
		"0 failed",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q, got: %s", want, out)
		}
	}
}

func TestDoctor_StationDown(t *testing.T) {
	opURL, stSrv := newLiveDeployment(t)
	stSrv.Close()

	out, err := runDoctorCmd(t, opURL)
	if err == nil {
		t.Fatalf("expected failure with dead station, got:\n%s", out)
	}
	if !strings.Contains(out, "[FAIL] Station dr-1") {
		t.Errorf("expected station FAIL, got: %s", out)
	}
	if !strings.Contains(err.Error(), "check(s) failed") {
		t.Errorf("error = %q", err.Error())
	}
}

func TestDoctor_OperatorUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	deadURL := srv.URL
	srv.Close()

	out, err := runDoctorCmd(t, deadURL)
	if err == nil {
		t.Fatal("expected failure with no operator")
	}
	if !strings.Contains(out, "[FAIL] Operator") {
		t.Errorf("expected operator FAIL, got: %s", out)
	}
}

func TestDoctor_WarnsWithoutStations(t *testing.T) {
	op := operator.New(operator.Opts{})
	opSrv := httptest.NewServer(op.Handler())
	t.Cleanup(opSrv.Close)
	t.Cleanup(op.Close)

	out, err := runDoctorCmd(t, opSrv.URL)
	if err != nil {
		t.Fatalf("doctor failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "[WARN] Stations: none registered") {
		t.Errorf("expected stations WARN, got: %s", out)
	}
}

func TestPrintCheckResult(t *testing.T) {
	buf := new(bytes.Buffer)
	printCheckResult(buf, checkResult{"Operator", "PASS", "http://localhost:8000"})
	want := "[PASS] Operator: http://localhost:8000\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}
}
