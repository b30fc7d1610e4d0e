package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"

	"github.com/vk/evalgraph/internal/binding"
	"github.com/vk/evalgraph/internal/ctxlog"
	"github.com/vk/evalgraph/internal/metrics"
	"github.com/vk/evalgraph/internal/notify"
	"github.com/vk/evalgraph/internal/registry"
	"github.com/vk/evalgraph/internal/validate"
	"github.com/vk/evalgraph/internal/value"
)

var testNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()
	if cfg.Clock == nil {
		cfg.Clock = func() time.Time { return testNow }
	}
	if cfg.Workers == 0 {
		cfg.Workers = 2
	}
	e, err := New(testContext(t), cfg)
	require.NoError(t, err)
	t.Cleanup(e.Close)
	return e
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctxlog.WithLogger(ctx, ctxlog.Discard())
}

func widget(name string, props ...registry.PropertySpec) registry.EntitySpec {
	return registry.EntitySpec{Name: name, Kind: registry.KindWidget, Properties: props}
}

func text(name, raw string) registry.PropertySpec {
	return registry.PropertySpec{Name: name, Type: validate.TypeText, Raw: value.String(raw)}
}

func defineInputAndText(t *testing.T, e *Engine) {
	t.Helper()
	ctx := testContext(t)
	require.NoError(t, e.Define(ctx, widget("Input1", text("text", "hello"))))
	require.NoError(t, e.Define(ctx, widget("Text1", text("value", "{{Input1.text}} world"))))
}

func TestRunBatch_PropagatesChanges(t *testing.T) {
	e := newTestEngine(t, Config{})
	ctx := testContext(t)
	defineInputAndText(t, e)

	res, err := e.RunBatch(ctx)
	require.NoError(t, err)
	assert.False(t, res.Noop)
	assert.NotEmpty(t, res.ID)
	assert.Equal(t, []string{"Input1.text", "Text1.value"}, res.Order)
	assert.Equal(t, [][]string{{"Input1.text"}, {"Text1.value"}}, res.Levels)
	assert.Equal(t, value.String("hello world"), e.Value("Text1.value"))

	require.NoError(t, e.SetRawValue(ctx, "Input1", "text", value.String("hi")))
	res, err = e.RunBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Input1.text", "Text1.value"}, res.Order)
	assert.Equal(t, []string{"Input1.text", "Text1.value"}, res.Changed)
	assert.Equal(t, value.String("hi world"), e.Value("Text1.value"))

	status, msg, err := e.Status("Text1.value")
	require.NoError(t, err)
	assert.Equal(t, registry.StatusValid, status)
	assert.Empty(t, msg)
}

func TestRunBatch_Idempotent(t *testing.T) {
	e := newTestEngine(t, Config{})
	ctx := testContext(t)
	defineInputAndText(t, e)

	_, err := e.RunBatch(ctx)
	require.NoError(t, err)

	res, err := e.RunBatch(ctx)
	require.NoError(t, err)
	assert.True(t, res.Noop)

	e.Registry().MarkDirty("Input1.text")
	res, err = e.RunBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Input1.text", "Text1.value"}, res.Order)
	assert.Empty(t, res.Changed)
	assert.Equal(t, value.String("hello world"), e.Value("Text1.value"))
}

func TestRunBatch_Cycle(t *testing.T) {
	e := newTestEngine(t, Config{})
	ctx := testContext(t)
	require.NoError(t, e.Define(ctx, widget("Text1", text("value", "{{Text2.value}}"))))
	require.NoError(t, e.Define(ctx, widget("Text2", text("value", "{{Text1.value}}"))))
	require.NoError(t, e.Define(ctx, widget("Label", text("text", "[{{Text1.value}}]"))))

	res, err := e.RunBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"Text1.value", "Text2.value"}}, res.Cycles)
	assert.Equal(t, []string{"Label.text"}, res.Order)

	for _, path := range []string{"Text1.value", "Text2.value"} {
		status, msg, err := e.Status(path)
		require.NoError(t, err)
		assert.Equal(t, registry.StatusCycleError, status, path)
		assert.Contains(t, msg, "Text1.value")
		assert.Equal(t, value.String(""), e.Value(path), "cycle members keep a defined value")
	}
	assert.Equal(t, value.String("[]"), e.Value("Label.text"))

	// Breaking the cycle recovers both nodes.
	require.NoError(t, e.SetRawValue(ctx, "Text2", "value", value.String("fixed")))
	res, err = e.RunBatch(ctx)
	require.NoError(t, err)
	assert.Empty(t, res.Cycles)
	assert.Equal(t, value.String("fixed"), e.Value("Text1.value"))
	assert.Equal(t, value.String("[fixed]"), e.Value("Label.text"))
	status, _, err := e.Status("Text1.value")
	require.NoError(t, err)
	assert.Equal(t, registry.StatusValid, status)
}

func TestRunBatch_UntypedCycleKeepsDefinedValues(t *testing.T) {
	e := newTestEngine(t, Config{})
	ctx := testContext(t)
	untyped := func(raw string) registry.PropertySpec {
		return registry.PropertySpec{Name: "value", Type: validate.TypeAny, Raw: value.String(raw)}
	}
	require.NoError(t, e.Define(ctx, widget("Text1", untyped("{{Text2.value}}"))))
	require.NoError(t, e.Define(ctx, widget("Text2", untyped("{{Text1.value}}"))))

	res, err := e.RunBatch(ctx)
	require.NoError(t, err)
	require.Len(t, res.Cycles, 1)

	for _, path := range []string{"Text1.value", "Text2.value"} {
		status, _, err := e.Status(path)
		require.NoError(t, err)
		assert.Equal(t, registry.StatusCycleError, status, path)
		assert.Equal(t, value.KindNull, e.Value(path).Kind(), path)
	}
}

func TestRunBatch_ErroredDependencyReadsUndefined(t *testing.T) {
	e := newTestEngine(t, Config{})
	ctx := testContext(t)
	require.NoError(t, e.Define(ctx, widget("Text1", text("value", "{{nosuchfn()}}"))))
	require.NoError(t, e.Define(ctx, widget("Text2", text("value", "[{{Text1.value}}]"))))

	_, err := e.RunBatch(ctx)
	require.NoError(t, err)

	status, msg, err := e.Status("Text1.value")
	require.NoError(t, err)
	assert.Equal(t, registry.StatusEvalError, status)
	assert.Contains(t, msg, "nosuchfn")
	assert.Equal(t, value.String(""), e.Value("Text1.value"))

	status, _, err = e.Status("Text2.value")
	require.NoError(t, err)
	assert.Equal(t, registry.StatusValid, status)
	assert.Equal(t, value.String("[]"), e.Value("Text2.value"))
}

func TestRunBatch_ValidationErrorReadsDefault(t *testing.T) {
	e := newTestEngine(t, Config{})
	ctx := testContext(t)
	require.NoError(t, e.Define(ctx, widget("Input1", registry.PropertySpec{
		Name: "count", Type: validate.TypeNumber, Raw: value.String("abc"),
	})))
	require.NoError(t, e.Define(ctx, widget("Text1", text("value", "n={{Input1.count}}"))))

	_, err := e.RunBatch(ctx)
	require.NoError(t, err)

	status, _, err := e.Status("Input1.count")
	require.NoError(t, err)
	assert.Equal(t, registry.StatusValidationError, status)
	assert.Equal(t, value.Number(0), e.Value("Input1.count"))
	assert.Equal(t, value.String("n=0"), e.Value("Text1.value"))
}

func TestDefine_OutOfOrder(t *testing.T) {
	e := newTestEngine(t, Config{})
	ctx := testContext(t)
	require.NoError(t, e.Define(ctx, widget("Text1", text("value", "{{Input1.text}}!"))))

	_, err := e.RunBatch(ctx)
	require.NoError(t, err)
	status, _, err := e.Status("Text1.value")
	require.NoError(t, err)
	assert.Equal(t, registry.StatusEvalError, status)

	require.NoError(t, e.Define(ctx, widget("Input1", text("text", "hello"))))
	assert.Equal(t, []string{"Input1.text"}, targetsOf(e.Bindings("Text1.value")))

	res, err := e.RunBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Input1.text", "Text1.value"}, res.Order)
	assert.Equal(t, value.String("hello!"), e.Value("Text1.value"))
}

func TestRemove_DependentsReadUndefined(t *testing.T) {
	e := newTestEngine(t, Config{})
	ctx := testContext(t)
	defineInputAndText(t, e)
	_, err := e.RunBatch(ctx)
	require.NoError(t, err)

	require.NoError(t, e.Remove(ctx, "Input1"))
	assert.False(t, e.Graph().HasNode("Input1.text"))
	res, err := e.RunBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Text1.value"}, res.Order)

	status, _, err := e.Status("Text1.value")
	require.NoError(t, err)
	assert.Equal(t, registry.StatusEvalError, status, "the removed entity is no longer a variable")

	// Re-defining restores the edge.
	require.NoError(t, e.Define(ctx, widget("Input1", text("text", "back"))))
	assert.True(t, e.Graph().HasEdge("Text1.value", "Input1.text"))
	_, err = e.RunBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, value.String("back world"), e.Value("Text1.value"))

	assert.ErrorIs(t, e.Remove(ctx, "Nope"), registry.ErrNotFound)
}

func TestMissingProperty_ReadsNull(t *testing.T) {
	e := newTestEngine(t, Config{})
	ctx := testContext(t)
	require.NoError(t, e.Define(ctx, widget("Widget1", text("label", "x"))))
	require.NoError(t, e.Define(ctx, widget("Text1", text("value", "<{{Widget1.nonExistentProp}}>"))))

	_, err := e.RunBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, value.String("<>"), e.Value("Text1.value"))
	assert.Equal(t, []string{"Widget1.nonExistentProp"}, e.Graph().PendingTargets())

	require.NoError(t, e.SetProperty(ctx, "Widget1", text("nonExistentProp", "now")))
	assert.True(t, e.Graph().HasEdge("Text1.value", "Widget1.nonExistentProp"))
	_, err = e.RunBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, value.String("<now>"), e.Value("Text1.value"))
}

func TestContainer_Children(t *testing.T) {
	e := newTestEngine(t, Config{})
	ctx := testContext(t)
	visible := func(b bool) registry.PropertySpec {
		return registry.PropertySpec{Name: VisibilityProperty, Type: validate.TypeBoolean, Raw: value.Bool(b)}
	}

	require.NoError(t, e.Define(ctx, widget("Container1")))
	b1 := widget("Button1", visible(true))
	b1.Parent = "Container1"
	b2 := widget("Button2", visible(false))
	b2.Parent = "Container1"
	require.NoError(t, e.Define(ctx, b1))
	require.NoError(t, e.Define(ctx, b2))

	_, err := e.RunBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, value.Array(value.String("Button1")), e.Value("Container1.children"))

	require.NoError(t, e.SetRawValue(ctx, "Button2", VisibilityProperty, value.Bool(true)))
	_, err = e.RunBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, value.Array(value.String("Button1"), value.String("Button2")), e.Value("Container1.children"))

	require.NoError(t, e.Remove(ctx, "Button1"))
	_, err = e.RunBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, value.Array(value.String("Button2")), e.Value("Container1.children"))

	require.NoError(t, e.SetParent(ctx, "Button2", ""))
	_, err = e.RunBatch(ctx)
	require.NoError(t, err)
	_, ok := e.Registry().Property("Container1.children")
	assert.False(t, ok, "a container without children has no children property")
}

func TestRunBatch_CanceledKeepsDirty(t *testing.T) {
	e := newTestEngine(t, Config{})
	defineInputAndText(t, e)

	ctx, cancel := context.WithCancel(testContext(t))
	cancel()
	_, err := e.RunBatch(ctx)
	require.Error(t, err)
	assert.True(t, IsSuperseded(err))
	assert.NotEmpty(t, e.Registry().Dirty())

	_, err = e.RunBatch(testContext(t))
	require.NoError(t, err)
	assert.Empty(t, e.Registry().Dirty())
	assert.Equal(t, value.String("hello world"), e.Value("Text1.value"))
}

func blockFunc(started chan<- struct{}, release <-chan struct{}) function.Function {
	var once sync.Once
	return function.New(&function.Spec{
		Type: function.StaticReturnType(cty.String),
		Impl: func(args []cty.Value, retType cty.Type) (cty.Value, error) {
			once.Do(func() { close(started) })
			<-release
			return cty.StringVal("done"), nil
		},
	})
}

func TestRunBatch_Superseded(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	e := newTestEngine(t, Config{
		EvalTimeout: 5 * time.Second,
		Functions:   map[string]function.Function{"block": blockFunc(started, release)},
	})
	ctx := testContext(t)
	require.NoError(t, e.Define(ctx, widget("Slow", text("value", "{{block()}}"))))
	require.NoError(t, e.Define(ctx, widget("Input1", text("text", "a"))))

	errc := make(chan error, 1)
	go func() {
		_, err := e.RunBatch(ctx)
		errc <- err
	}()

	<-started
	require.NoError(t, e.SetRawValue(ctx, "Input1", "text", value.String("b")))
	close(release)

	err := <-errc
	require.ErrorIs(t, err, registry.ErrSuperseded)
	assert.True(t, e.Value("Input1.text").IsUndefined(), "nothing from the superseded batch was committed")

	_, err = e.RunBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, value.String("b"), e.Value("Input1.text"))
	assert.Equal(t, value.String("done"), e.Value("Slow.value"))
}

func TestRunBatch_MetricsAndNotifications(t *testing.T) {
	m, err := metrics.New(prometheus.NewRegistry())
	require.NoError(t, err)
	n := notify.New(ctxlog.Discard(), 4)
	t.Cleanup(func() { _ = n.Close() })

	ctx := testContext(t)
	changes, err := n.Subscribe(ctx)
	require.NoError(t, err)

	e := newTestEngine(t, Config{Metrics: m, Publisher: n})
	defineInputAndText(t, e)
	res, err := e.RunBatch(ctx)
	require.NoError(t, err)

	select {
	case change := <-changes:
		assert.Equal(t, res.ID, change.BatchID)
		assert.Equal(t, res.Revision, change.Revision)
		assert.Equal(t, []string{"Input1.text", "Text1.value"}, change.Changed)
		assert.Equal(t, "Valid", change.Statuses["Text1.value"])
	case <-time.After(2 * time.Second):
		t.Fatal("no change notification")
	}

	assert.Equal(t, 1.0, testutil.ToFloat64(m.BatchesTotal.WithLabelValues(metrics.OutcomeCommitted)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.EvaluationsTotal.WithLabelValues("Valid")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.GraphNodes))
}

func TestStart_BackgroundBatches(t *testing.T) {
	e := newTestEngine(t, Config{})
	ctx := testContext(t)

	var mu sync.Mutex
	var batches []*BatchResult
	e.OnBatch(func(res *BatchResult) {
		mu.Lock()
		defer mu.Unlock()
		batches = append(batches, res)
	})
	e.Start(ctx)
	e.Start(ctx)

	defineInputAndText(t, e)
	assert.Eventually(t, func() bool {
		return e.Value("Text1.value").Equal(value.String("hello world"))
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, e.SetRawValue(ctx, "Input1", "text", value.String("hi")))
	assert.Eventually(t, func() bool {
		return e.Value("Text1.value").Equal(value.String("hi world")) && len(e.Registry().Dirty()) == 0
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, batches)
	for i := 1; i < len(batches); i++ {
		assert.Greater(t, batches[i].Revision, batches[i-1].Revision)
	}
}

func TestChildrenFormula(t *testing.T) {
	assert.Equal(t,
		`[for name, visible in {"A" = A.isVisible, "B" = B.isVisible} : name if visible != false]`,
		childrenFormula([]string{"A", "B"}))
}

func targetsOf(bindings []binding.Binding) []string {
	var out []string
	for _, b := range bindings {
		for _, r := range b.References {
			out = append(out, r.Path)
		}
	}
	return out
}

func TestValues_Tree(t *testing.T) {
	e := newTestEngine(t, Config{})
	ctx := testContext(t)
	defineInputAndText(t, e)
	require.NoError(t, e.Define(ctx, widget("Table1", registry.PropertySpec{
		Name: "rows",
		Type: validate.TypeTableRows,
		Raw:  value.String(`[{"id": 1}]`),
	})))
	_, err := e.RunBatch(ctx)
	require.NoError(t, err)

	want := map[string]value.Value{
		"Input1.text": value.String("hello"),
		"Text1.value": value.String("hello world"),
		"Table1.rows": value.Array(value.Object(map[string]value.Value{"id": value.Number(1)})),
	}
	opt := cmp.Comparer(func(a, b value.Value) bool { return a.Equal(b) })
	if diff := cmp.Diff(want, e.Values(), opt); diff != "" {
		t.Errorf("Values() mismatch (-want +got):\n%s", diff)
	}
}
