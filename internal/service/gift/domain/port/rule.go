// internal/service/gift/domain/port/rule.go
package port

// Fact 是规则引擎求值时可见的玩家画像。
type Fact struct {
	PlayerID string   `json:"playerId"`
	Level    string   `json:"level"`
	Points   int      `json:"points"`
	ZoneID   string   `json:"zoneId"`
	ZonePath []string `json:"zonePath"` // 叶子到根的祖先链
}

// RuleEngine 对管理员配置的资格规则表达式求值。
// 规则语法错误或求值失败都以 error 返回，调用方记为服务端故障
// 并放行该玩家（规则是收紧手段，坏规则不应冻结发奖）。
type RuleEngine interface {
	Evaluate(rule string, fact Fact) (bool, error)
}
