// =============================================================================
// 📦 VideoFlow 配置加载器
// =============================================================================
// 配置优先级: 默认值 → YAML 文件 → 环境变量 → 验证器
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("train.yaml").
//	    WithEnvPrefix("VIDEOFLOW").
//	    Load()
//
// 环境变量名由各级 env 标签拼接，例如 VIDEOFLOW_TRAINING_LEARNING_RATE。
// =============================================================================
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/BaSui01/videoflow/types"
)

// DefaultEnvPrefix 默认环境变量前缀
const DefaultEnvPrefix = "VIDEOFLOW"

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader 创建配置加载器
func NewLoader() *Loader {
	return &Loader{envPrefix: DefaultEnvPrefix}
}

// WithConfigPath 设置 YAML 文件路径；文件不存在时沿用默认值
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 追加在 Load 末尾执行的验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置。解析失败返回 CONFIG_INVALID，验证器错误原样包装返回。
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFile(cfg); err != nil {
			return nil, err
		}
	}
	if err := applyEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix); err != nil {
		return nil, err
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("validate config: %w", err)
		}
	}
	return cfg, nil
}

func (l *Loader) loadFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return types.NewError(types.ErrConfigInvalid, "read config file "+l.configPath).WithCause(err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return types.NewError(types.ErrConfigInvalid, "parse config file "+l.configPath).WithCause(err)
	}
	return nil
}

// =============================================================================
// 🌱 环境变量覆盖
// =============================================================================

var durationType = reflect.TypeOf(time.Duration(0))

// applyEnv 按 env 标签递归覆盖结构体字段，未设置或为空的变量跳过
func applyEnv(v reflect.Value, prefix string) error {
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		tag := t.Field(i).Tag.Get("env")
		if tag == "" || tag == "-" {
			continue
		}
		key := prefix + "_" + tag
		field := v.Field(i)

		if field.Kind() == reflect.Struct {
			if err := applyEnv(field, key); err != nil {
				return err
			}
			continue
		}
		raw, ok := os.LookupEnv(key)
		if !ok || raw == "" || !field.CanSet() {
			continue
		}
		if err := setField(field, raw); err != nil {
			return types.NewError(types.ErrConfigInvalid, fmt.Sprintf("env %s=%q", key, raw)).WithCause(err)
		}
	}
	return nil
}

func setField(field reflect.Value, raw string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(raw)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return err
		}
		field.SetBool(b)
	case reflect.Int, reflect.Int32, reflect.Int64:
		n, err := parseInt(field.Type(), raw)
		if err != nil {
			return err
		}
		field.SetInt(n)
	case reflect.Float64:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)
	case reflect.Slice:
		return setSlice(field, splitList(raw))
	default:
		return fmt.Errorf("unsupported field kind %s", field.Kind())
	}
	return nil
}

// parseInt time.Duration 字段按 "10m" 形式解析
func parseInt(typ reflect.Type, raw string) (int64, error) {
	if typ == durationType {
		d, err := time.ParseDuration(raw)
		return int64(d), err
	}
	return strconv.ParseInt(raw, 10, 64)
}

// setSlice 逗号分隔的列表，如 channel_widths 与 output_paths
func setSlice(field reflect.Value, parts []string) error {
	out := reflect.MakeSlice(field.Type(), len(parts), len(parts))
	for i, p := range parts {
		if err := setField(out.Index(i), p); err != nil {
			return fmt.Errorf("item %d: %w", i, err)
		}
	}
	field.Set(out)
	return nil
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
