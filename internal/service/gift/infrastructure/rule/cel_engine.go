// internal/service/gift/infrastructure/rule/cel_engine.go
package rule

import (
	"encoding/json"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/pkg/errors"

	"ecoquiz/internal/service/gift/domain/port"
)

// CELRuleEngine 是 port.RuleEngine 的 CEL 实现。
// 管理员在奖品上配置的附加资格规则是一条对 player 画像求值的
// CEL 表达式，例如 `player.points >= 500 && "zone-idf" in player.zonePath`。
// 编译结果按表达式缓存，重复求值只付执行成本。
type CELRuleEngine struct {
	env *cel.Env

	mu       sync.RWMutex
	programs map[string]cel.Program
}

// NewCELRuleEngine 创建规则引擎实例。
func NewCELRuleEngine() (*CELRuleEngine, error) {
	env, err := cel.NewEnv(
		cel.Variable("player", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create cel environment")
	}
	return &CELRuleEngine{
		env:      env,
		programs: make(map[string]cel.Program),
	}, nil
}

// Evaluate 实现 port.RuleEngine。
func (e *CELRuleEngine) Evaluate(rule string, fact port.Fact) (bool, error) {
	program, err := e.compile(rule)
	if err != nil {
		return false, err
	}

	// 经由 JSON 把画像转成 map，规则里的字段名与 json tag 一致
	factData, err := json.Marshal(fact)
	if err != nil {
		return false, err
	}
	var factMap map[string]interface{}
	if err := json.Unmarshal(factData, &factMap); err != nil {
		return false, err
	}

	out, _, err := program.Eval(map[string]interface{}{"player": factMap})
	if err != nil {
		return false, errors.Wrap(err, "rule evaluation failed")
	}
	result, ok := out.Value().(bool)
	if !ok {
		return false, errors.Errorf("rule did not evaluate to a boolean, got %T", out.Value())
	}
	return result, nil
}

func (e *CELRuleEngine) compile(rule string) (cel.Program, error) {
	e.mu.RLock()
	program, ok := e.programs[rule]
	e.mu.RUnlock()
	if ok {
		return program, nil
	}

	ast, issues := e.env.Compile(rule)
	if issues != nil && issues.Err() != nil {
		return nil, errors.Wrap(issues.Err(), "invalid rule expression")
	}
	program, err := e.env.Program(ast)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build rule program")
	}

	e.mu.Lock()
	e.programs[rule] = program
	e.mu.Unlock()
	return program, nil
}
