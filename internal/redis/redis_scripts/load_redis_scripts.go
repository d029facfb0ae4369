package redis_scripts

import (
	"context"
	"embed"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

//go:embed *.lua
var fs embed.FS

var (
	ReplicaUpsert = mustScript("replica_upsert.lua")
	ReplicaRemove = mustScript("replica_remove.lua")
	LockRelease   = mustScript("lock_release.lua")
)

func mustScript(name string) *redis.Script {
	code, err := fs.ReadFile(name)
	if err != nil {
		panic(fmt.Sprintf("redis_scripts: %s: %v", name, err))
	}
	return redis.NewScript(string(code))
}

// LoadAll finds every embedded Lua file and loads it into the script cache,
// so the first EvalSha of each script does not fall back to EVAL.
func LoadAll(ctx context.Context, rdb redis.Scripter) error {
	files, err := fs.ReadDir(".")
	if err != nil {
		return fmt.Errorf("read embed dir: %w", err)
	}
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".lua") {
			continue
		}

		code, err := fs.ReadFile(f.Name())
		if err != nil {
			return err
		}
		sha, err := rdb.ScriptLoad(ctx, string(code)).Result()
		if err != nil {
			return fmt.Errorf("load lua %s: %w", f.Name(), err)
		}
		zap.L().Info("lua script loaded", zap.String("file", f.Name()), zap.String("sha", sha))
	}
	return nil
}
