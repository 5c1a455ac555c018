package state

// 状态树路径
const (
	PathGame             = "game"
	PathGameActive       = "game.isActive"
	PathGameRunning      = "game.isRunning"
	PathGameElapsed      = "game.elapsedMs"
	PathGameEvents       = "game.loggedEvents"
	PathGameDisplay      = "game.display"
	PathUI               = "ui"
	PathUIActiveTab      = "ui.activeTab"
	PathUIStorageWarning = "ui.storageWarning"
)

// DefaultTree 初始状态树
func DefaultTree() map[string]interface{} {
	return map[string]interface{}{
		"game": map[string]interface{}{
			"isActive":     false,
			"isRunning":    false,
			"elapsedMs":    int64(0),
			"loggedEvents": []interface{}{},
			"display":      "00:00",
		},
		"ui": map[string]interface{}{
			"activeTab":      "logger",
			"storageWarning": false,
		},
	}
}
