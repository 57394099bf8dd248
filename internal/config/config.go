package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// ServerConfig 定义 HTTP 服务器的监听配置参数
type ServerConfig struct {
	Host            string        // 监听地址，默认 "0.0.0.0"
	Port            int           // 监听端口，默认 8080
	Mode            string        // gin 运行模式: debug, release, test
	ReadTimeout     time.Duration // 读取请求超时
	WriteTimeout    time.Duration // 写响应超时，需大于管线超时
	ShutdownTimeout time.Duration // 优雅关闭等待时间
}

// CORSConfig 定义跨域资源共享 (CORS) 配置
type CORSConfig struct {
	AllowedOrigins []string // 允许的来源列表，"*" 表示允许所有来源
}

// LogConfig 定义日志系统配置
type LogConfig struct {
	Level       string // 日志级别: debug, info, warn, error
	Format      string // json 或 console
	Development bool   // 开发模式: 启用彩色输出和详细堆栈信息
	File        string // 日志文件路径，留空则只输出到 stdout
	MaxSizeMB   int    // 单个日志文件最大体积
	MaxBackups  int    // 保留的旧日志文件数
	MaxAgeDays  int    // 旧日志保留天数
}

// 加密方式
const (
	EncryptionTLS      = "tls"
	EncryptionSTARTTLS = "starttls"
	EncryptionNone     = "none"
)

// SMTPConfig 定义出站 SMTP 客户端配置
type SMTPConfig struct {
	Host       string        // SMTP 服务器主机名
	Port       int           // 端口，implicit TLS 通常为 465，STARTTLS 为 587
	Username   string        // 认证用户名，留空则跳过 AUTH
	Password   string        // 认证密码，不会出现在日志或响应中
	Encryption string        // tls, starttls, none
	Timeout    time.Duration // 连接与命令超时
	HeloName   string        // EHLO 使用的本机名称
	SkipVerify bool          // 跳过证书校验，仅用于本地调试
}

// Address 返回 host:port
func (c SMTPConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// 传输方式
const (
	TransportAuto     = "auto"
	TransportSMTP     = "smtp"
	TransportSendmail = "sendmail"
	TransportSES      = "ses"
)

// MailConfig 定义邮件投递相关配置
type MailConfig struct {
	Transport     string            // auto, smtp, sendmail, ses
	Recipient     string            // 接收申请通知的内部地址
	FromAddress   string            // 发件地址
	FromName      string            // 发件人显示名
	SendmailPath  string            // 本地投递程序路径
	SESRegion     string            // SES 区域
	PositionsFile string            // 职位目录 YAML 文件
	Positions     map[string]string // 从 PositionsFile 加载的职位名称
}

// UploadConfig 定义简历上传配置
type UploadConfig struct {
	Dir               string   // 临时上传目录
	MaxSize           int64    // 最大文件字节数，默认 10 MiB
	AllowedExtensions []string // 允许的扩展名（小写，不含点）
	CVRequired        bool     // 是否必须上传简历
}

// PipelineConfig 定义提交管线配置
type PipelineConfig struct {
	Timeout time.Duration // 单次提交的总耗时上限
	Debug   bool          // 在错误响应中附带诊断信息，生产环境禁止开启
}

// MetricsConfig 定义监控指标配置
type MetricsConfig struct {
	Enabled bool
}

// SinkConfig 定义本地开发用 SMTP 接收服务配置
type SinkConfig struct {
	Addr      string // 监听地址，默认 "127.0.0.1:2525"
	Domain    string // EHLO 域名
	Username  string // 接受的 PLAIN 用户名，留空则不要求认证
	Password  string
	OutputDir string // .eml 文件输出目录，留空则只记录日志
}

// Config 是系统核心配置的根结构体，包含所有子系统的配置
type Config struct {
	Server   ServerConfig
	CORS     CORSConfig
	Log      LogConfig
	SMTP     SMTPConfig
	Mail     MailConfig
	Upload   UploadConfig
	Pipeline PipelineConfig
	Metrics  MetricsConfig
	Sink     SinkConfig
}

// DefaultMaxUploadSize 默认上传上限 10 MiB
const DefaultMaxUploadSize int64 = 10 << 20

// Load 从环境变量和 .env 文件加载系统配置
//
// 配置加载优先级（从高到低）：
//  1. 系统环境变量
//  2. .env 文件（如果存在）
//  3. 默认值
//
// 环境变量前缀: INCORVIX_
// 例如: INCORVIX_SMTP_HOST, INCORVIX_UPLOAD_CV_REQUIRED
//
// 返回值:
//   - *Config: 加载成功的配置对象
//   - error: 配置验证失败时返回错误
func Load() (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetEnvPrefix("incorvix")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	cfg := &Config{
		Server: ServerConfig{
			Host:            v.GetString("server.host"),
			Port:            v.GetInt("server.port"),
			Mode:            v.GetString("server.mode"),
			ReadTimeout:     v.GetDuration("server.read_timeout"),
			WriteTimeout:    v.GetDuration("server.write_timeout"),
			ShutdownTimeout: v.GetDuration("server.shutdown_timeout"),
		},
		CORS: CORSConfig{
			AllowedOrigins: parseList(v.GetString("cors.allowed_origins")),
		},
		Log: LogConfig{
			Level:       v.GetString("log.level"),
			Format:      v.GetString("log.format"),
			Development: v.GetBool("log.development"),
			File:        v.GetString("log.file"),
			MaxSizeMB:   v.GetInt("log.max_size_mb"),
			MaxBackups:  v.GetInt("log.max_backups"),
			MaxAgeDays:  v.GetInt("log.max_age_days"),
		},
		SMTP: SMTPConfig{
			Host:       v.GetString("smtp.host"),
			Port:       v.GetInt("smtp.port"),
			Username:   v.GetString("smtp.username"),
			Password:   v.GetString("smtp.password"),
			Encryption: strings.ToLower(v.GetString("smtp.encryption")),
			Timeout:    v.GetDuration("smtp.timeout"),
			HeloName:   v.GetString("smtp.helo_name"),
			SkipVerify: v.GetBool("smtp.skip_verify"),
		},
		Mail: MailConfig{
			Transport:     strings.ToLower(v.GetString("mail.transport")),
			Recipient:     v.GetString("mail.recipient"),
			FromAddress:   v.GetString("mail.from_address"),
			FromName:      v.GetString("mail.from_name"),
			SendmailPath:  v.GetString("mail.sendmail_path"),
			SESRegion:     v.GetString("mail.ses_region"),
			PositionsFile: v.GetString("mail.positions_file"),
		},
		Upload: UploadConfig{
			Dir:               v.GetString("upload.dir"),
			MaxSize:           v.GetInt64("upload.max_size"),
			AllowedExtensions: parseExtensions(v.GetString("upload.allowed_extensions")),
			CVRequired:        v.GetBool("upload.cv_required"),
		},
		Pipeline: PipelineConfig{
			Timeout: v.GetDuration("pipeline.timeout"),
			Debug:   v.GetBool("pipeline.debug"),
		},
		Metrics: MetricsConfig{
			Enabled: v.GetBool("metrics.enabled"),
		},
		Sink: SinkConfig{
			Addr:      v.GetString("sink.addr"),
			Domain:    v.GetString("sink.domain"),
			Username:  v.GetString("sink.username"),
			Password:  v.GetString("sink.password"),
			OutputDir: v.GetString("sink.output_dir"),
		},
	}

	if len(cfg.CORS.AllowedOrigins) == 0 {
		cfg.CORS.AllowedOrigins = []string{"*"}
	}

	if cfg.Mail.PositionsFile != "" {
		positions, err := LoadPositions(cfg.Mail.PositionsFile)
		if err != nil {
			return nil, err
		}
		cfg.Mail.Positions = positions
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "45s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("cors.allowed_origins", "*")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.development", false)
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 30)
	v.SetDefault("smtp.host", "")
	v.SetDefault("smtp.port", 465)
	v.SetDefault("smtp.username", "")
	v.SetDefault("smtp.password", "")
	v.SetDefault("smtp.encryption", EncryptionTLS)
	v.SetDefault("smtp.timeout", "15s")
	v.SetDefault("smtp.helo_name", "localhost")
	v.SetDefault("smtp.skip_verify", false)
	v.SetDefault("mail.transport", TransportAuto)
	v.SetDefault("mail.recipient", "contact@incorvix.nl")
	v.SetDefault("mail.from_address", "contact@incorvix.nl")
	v.SetDefault("mail.from_name", "Incorvix Website")
	v.SetDefault("mail.sendmail_path", "/usr/sbin/sendmail")
	v.SetDefault("mail.ses_region", "eu-west-1")
	v.SetDefault("mail.positions_file", "")
	v.SetDefault("upload.dir", filepath.Join(os.TempDir(), "incorvix-uploads"))
	v.SetDefault("upload.max_size", DefaultMaxUploadSize)
	v.SetDefault("upload.allowed_extensions", "pdf,doc")
	v.SetDefault("upload.cv_required", false)
	v.SetDefault("pipeline.timeout", "30s")
	v.SetDefault("pipeline.debug", false)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("sink.addr", "127.0.0.1:2525")
	v.SetDefault("sink.domain", "localhost")
	v.SetDefault("sink.username", "")
	v.SetDefault("sink.password", "")
	v.SetDefault("sink.output_dir", "")
}

// Validate 检查配置组合是否可用
func (c *Config) Validate() error {
	switch c.Mail.Transport {
	case TransportAuto, TransportSMTP, TransportSendmail, TransportSES:
	default:
		return fmt.Errorf("invalid mail.transport %q", c.Mail.Transport)
	}
	if c.Mail.Transport == TransportSMTP && c.SMTP.Host == "" {
		return fmt.Errorf("mail.transport=smtp requires smtp.host")
	}
	switch c.SMTP.Encryption {
	case EncryptionTLS, EncryptionSTARTTLS, EncryptionNone:
	default:
		return fmt.Errorf("invalid smtp.encryption %q", c.SMTP.Encryption)
	}
	if c.SMTP.Port <= 0 || c.SMTP.Port > 65535 {
		return fmt.Errorf("invalid smtp.port %d", c.SMTP.Port)
	}
	if c.Mail.Recipient == "" || c.Mail.FromAddress == "" {
		return fmt.Errorf("mail.recipient and mail.from_address must not be empty")
	}
	if c.Upload.MaxSize <= 0 {
		return fmt.Errorf("upload.max_size must be positive")
	}
	if len(c.Upload.AllowedExtensions) == 0 {
		return fmt.Errorf("upload.allowed_extensions must not be empty")
	}
	if c.Upload.Dir == "" {
		return fmt.Errorf("upload.dir must not be empty")
	}
	if c.Pipeline.Timeout <= 0 {
		return fmt.Errorf("pipeline.timeout must be positive")
	}
	return nil
}

// positionsFile 职位目录文件格式
type positionsFile struct {
	Positions map[string]string `yaml:"positions"`
}

// LoadPositions 读取职位目录 YAML 文件
//
// 文件格式:
//
//	positions:
//	  sap-consultant: SAP Consultant
//	  data-engineer: Data Engineer
func LoadPositions(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read positions file: %w", err)
	}
	var pf positionsFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("parse positions file %s: %w", path, err)
	}
	return pf.Positions, nil
}

// parseExtensions 解析扩展名列表，统一为小写且去掉前导点
func parseExtensions(value string) []string {
	out := parseList(value)
	for i := range out {
		out[i] = strings.TrimPrefix(strings.ToLower(out[i]), ".")
	}
	return out
}

// parseList 将逗号分隔的字符串解析为字符串切片
//
// 参数:
//   - value: 逗号分隔的字符串，如 "item1,item2,item3"
//
// 返回值:
//   - []string: 解析后的字符串切片，已去除空白字符
func parseList(value string) []string {
	parts := strings.Split(value, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}

// loadEnvFile 尝试加载 .env 文件
//
// 加载顺序：
//  1. 当前目录的 .env
//  2. 父目录的 .env
//
// 如果文件不存在则静默跳过，已存在的环境变量不会被覆盖。
func loadEnvFile() {
	if err := godotenv.Load(".env"); err == nil {
		return
	}

	parentEnv := filepath.Join("..", ".env")
	if _, err := os.Stat(parentEnv); err == nil {
		_ = godotenv.Load(parentEnv)
	}
}
