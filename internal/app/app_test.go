package app

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"fundingwatch/internal/config"
	"fundingwatch/internal/state"
	"fundingwatch/internal/storage"
)

func newTestApp(t *testing.T) (*App, string) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "state.db")
	cfg := &config.Config{
		Monitor: config.MonitorConfig{
			Pairs:            []string{"BTC_USDT", "ETH_USDT"},
			LongThreshold:    -0.001,
			ShortThreshold:   0.001,
			ThresholdStep:    0.0001,
			HistorySize:      12,
			TopN:             10,
			SqueezeThreshold: 0.003,
		},
		Persistence: config.PersistenceConfig{
			Backend: config.BackendFile,
			File:    config.FileConfig{Path: dbPath, Key: "state"},
		},
	}
	return NewApp(cfg, zerolog.Nop()), dbPath
}

func seed(t *testing.T, path string) {
	t.Helper()
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	ps := state.PersistedState{
		Settings: state.NewSettings(false, -0.002, 0.0015, []string{"BTC_USDT", "SOL_USDT"}),
		History: map[string][]state.Sample{
			"BTC_USDT": {
				{Timestamp: base, Rate: 0.0001},
				{Timestamp: base.Add(90 * time.Second), Rate: 0.0002},
			},
			"SOL_USDT": {
				{Timestamp: base, Rate: -0.0021},
			},
		},
		DailyStats: state.DailyStats{AlertCount: 1, MaxLong: &state.Extreme{Rate: -0.0021, Pair: "SOL_USDT"}},
	}
	payload, err := state.EncodeDocument(ps)
	if err != nil {
		t.Fatalf("编码失败: %v", err)
	}

	store, err := storage.OpenFile(path, "state")
	if err != nil {
		t.Fatalf("打开 buntdb 失败: %v", err)
	}
	defer store.Close()
	if err := store.Save(context.Background(), payload); err != nil {
		t.Fatalf("写入失败: %v", err)
	}
}

func TestStatusPrintsPersistedState(t *testing.T) {
	a, path := newTestApp(t)
	seed(t, path)

	var buf bytes.Buffer
	if err := a.Status(context.Background(), &buf); err != nil {
		t.Fatalf("Status 失败: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"-0.002", "0.0015", "SOL_USDT -0.002100", "BTC_USDT", "0.000200", "INSUFFICIENT"} {
		if !strings.Contains(strings.ToUpper(out), strings.ToUpper(want)) {
			t.Fatalf("输出缺少 %q:\n%s", want, out)
		}
	}
}

func TestStatusFallsBackToDefaults(t *testing.T) {
	a, _ := newTestApp(t)

	var buf bytes.Buffer
	if err := a.Status(context.Background(), &buf); err != nil {
		t.Fatalf("Status 失败: %v", err)
	}
	if !strings.Contains(buf.String(), "ETH_USDT") {
		t.Fatalf("无持久化状态时应展示默认交易对:\n%s", buf.String())
	}
}

func TestExportCSVAndPNG(t *testing.T) {
	a, path := newTestApp(t)
	seed(t, path)

	dir := t.TempDir()
	csvPath := filepath.Join(dir, "out", "history.csv")
	pngPath := filepath.Join(dir, "out", "history.png")

	if err := a.Export(context.Background(), ExportOptions{CSVPath: csvPath, PNGPath: pngPath}); err != nil {
		t.Fatalf("Export 失败: %v", err)
	}

	data, err := os.ReadFile(csvPath)
	if err != nil {
		t.Fatalf("读取 CSV 失败: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 4 {
		t.Fatalf("CSV 应有表头加 3 行, 实际 %d:\n%s", len(lines), data)
	}
	if lines[0] != "pair,timestamp,funding_rate" || !strings.HasPrefix(lines[1], "BTC_USDT,") {
		t.Fatalf("CSV 内容不符合预期:\n%s", data)
	}

	if info, err := os.Stat(pngPath); err != nil || info.Size() == 0 {
		t.Fatalf("PNG 应已生成: %v", err)
	}
}

func TestExportFiltersPairs(t *testing.T) {
	a, path := newTestApp(t)
	seed(t, path)

	csvPath := filepath.Join(t.TempDir(), "sol.csv")
	if err := a.Export(context.Background(), ExportOptions{CSVPath: csvPath, Pairs: []string{"sol_usdt"}}); err != nil {
		t.Fatalf("Export 失败: %v", err)
	}
	data, _ := os.ReadFile(csvPath)
	if strings.Contains(string(data), "BTC_USDT") || !strings.Contains(string(data), "SOL_USDT") {
		t.Fatalf("应只导出 SOL_USDT:\n%s", data)
	}
}

func TestExportRequiresOutput(t *testing.T) {
	a, _ := newTestApp(t)
	if err := a.Export(context.Background(), ExportOptions{}); err == nil {
		t.Fatal("未指定输出应报错")
	}
}

func TestSimulateAlert(t *testing.T) {
	a, path := newTestApp(t)

	var buf bytes.Buffer
	if err := a.SimulateAlert(context.Background(), &buf, "btc_usdt", -0.0015); err != nil {
		t.Fatalf("SimulateAlert 失败: %v", err)
	}
	if !strings.Contains(buf.String(), "BTC_USDT -0.001500: long alert, sent=true") {
		t.Fatalf("模拟结果不符合预期: %s", buf.String())
	}

	buf.Reset()
	if err := a.SimulateAlert(context.Background(), &buf, "ETH_USDT", 0.0001); err != nil {
		t.Fatalf("SimulateAlert 失败: %v", err)
	}
	if !strings.Contains(buf.String(), "no alert") {
		t.Fatalf("未越界应无告警: %s", buf.String())
	}

	if _, err := os.Stat(path); err == nil {
		t.Fatal("模拟不应写入持久化存储")
	}
}
