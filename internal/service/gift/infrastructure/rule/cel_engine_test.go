// internal/service/gift/infrastructure/rule/cel_engine_test.go
package rule

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ecoquiz/internal/service/gift/domain/port"
)

func testFact() port.Fact {
	return port.Fact{
		PlayerID: "player-1",
		Level:    "CONNAISSEUR",
		Points:   750,
		ZoneID:   "cp-75011",
		ZonePath: []string{"cp-75011", "city-paris", "dept-75", "region-idf"},
	}
}

func TestCELRuleEngineEvaluate(t *testing.T) {
	engine, err := NewCELRuleEngine()
	require.NoError(t, err)

	cases := []struct {
		rule string
		want bool
	}{
		{`player.points >= 500`, true},
		{`player.points >= 1000`, false},
		{`player.level == "CONNAISSEUR"`, true},
		{`"region-idf" in player.zonePath`, true},
		{`"region-bzh" in player.zonePath`, false},
		{`player.points >= 500 && player.zoneId == "cp-75011"`, true},
	}
	for _, tc := range cases {
		got, err := engine.Evaluate(tc.rule, testFact())
		require.NoError(t, err, tc.rule)
		assert.Equal(t, tc.want, got, tc.rule)
	}
}

func TestCELRuleEngineInvalidExpression(t *testing.T) {
	engine, err := NewCELRuleEngine()
	require.NoError(t, err)

	_, err = engine.Evaluate(`player.points >=`, testFact())
	assert.Error(t, err)
}

func TestCELRuleEngineNonBooleanResult(t *testing.T) {
	engine, err := NewCELRuleEngine()
	require.NoError(t, err)

	_, err = engine.Evaluate(`player.points`, testFact())
	assert.Error(t, err)
}

func TestCELRuleEngineUnknownField(t *testing.T) {
	engine, err := NewCELRuleEngine()
	require.NoError(t, err)

	// player 是 dyn map, 未知字段在求值期报错而不是编译期
	_, err = engine.Evaluate(`player.nonexistent == 1`, testFact())
	assert.Error(t, err)
}

func TestCELRuleEngineCachesPrograms(t *testing.T) {
	engine, err := NewCELRuleEngine()
	require.NoError(t, err)

	rule := `player.points >= 500`
	_, err = engine.Evaluate(rule, testFact())
	require.NoError(t, err)

	engine.mu.RLock()
	_, cached := engine.programs[rule]
	engine.mu.RUnlock()
	assert.True(t, cached)
}
