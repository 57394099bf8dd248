package domain

import (
	"errors"
	"net/mail"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// RFC 5322 邮箱地址长度限制
const (
	MaxEmailLength     = 254
	MaxLocalPartLength = 64
	MaxDomainLength    = 253
)

// 域名必须至少包含一个点，即 user@domain.tld 形式
var domainRegex = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(\.[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)+$`)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// formValidator 返回共享的校验器实例，字段名取自 json 标签
func formValidator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return fld.Name
			}
			return name
		})
		_ = v.RegisterValidation("applicant_email", func(fl validator.FieldLevel) bool {
			return ValidEmail(fl.Field().String())
		})
		validate = v
	})
	return validate
}

// ValidEmail 校验提交者邮箱地址
//
// 要求单个 local@domain.tld 形式的裸地址，不接受显示名或多个地址。
func ValidEmail(email string) bool {
	if email == "" || len(email) > MaxEmailLength {
		return false
	}
	if strings.ContainsAny(email, "\r\n") {
		return false
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		return false
	}
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return false
	}
	local, domain := email[:at], email[at+1:]
	if len(local) > MaxLocalPartLength || len(domain) > MaxDomainLength {
		return false
	}
	return domainRegex.MatchString(domain)
}

// Validate 按 validate 标签校验表单结构体
//
// 返回值:
//   - nil 表示通过；否则为 *ValidationError，必填缺失排在格式错误之前
func Validate(form any) error {
	err := formValidator().Struct(form)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	var missing, invalid []FieldError
	for _, fe := range verrs {
		if fe.Tag() == "required" {
			missing = append(missing, FieldError{Field: fe.Field(), Reason: ReasonRequired})
			continue
		}
		invalid = append(invalid, FieldError{Field: fe.Field(), Reason: ReasonInvalid})
	}
	return &ValidationError{Fields: append(missing, invalid...)}
}

// NormalizeSubmission 去除各字段首尾空白，缺失的可选字段保持空串
func NormalizeSubmission(s *Submission) {
	s.Name = strings.TrimSpace(s.Name)
	s.Email = strings.TrimSpace(s.Email)
	s.Phone = strings.TrimSpace(s.Phone)
	s.Position = strings.TrimSpace(s.Position)
	s.Experience = strings.TrimSpace(s.Experience)
	s.Message = strings.TrimSpace(s.Message)
}

// ParseSubmission 由原始表单字段构建并校验 Submission
//
// 参数:
//   - fields: 表单字段名到值的映射，未出现的字段视为空串
//
// 返回值:
//   - *Submission: 校验通过的申请
//   - error: *ValidationError
func ParseSubmission(fields map[string]string) (*Submission, error) {
	s := &Submission{
		Name:       fields["name"],
		Email:      fields["email"],
		Phone:      fields["phone"],
		Position:   fields["position"],
		Experience: fields["experience"],
		Message:    fields["message"],
	}
	NormalizeSubmission(s)
	if err := Validate(s); err != nil {
		return nil, err
	}
	return s, nil
}

// NormalizeContact 去除联系表单字段首尾空白
func NormalizeContact(r *ContactRequest) {
	r.Name = strings.TrimSpace(r.Name)
	r.Email = strings.TrimSpace(r.Email)
	r.Message = strings.TrimSpace(r.Message)
}

// NormalizeConsultation 去除咨询表单字段首尾空白
func NormalizeConsultation(r *ConsultationRequest) {
	r.FirstName = strings.TrimSpace(r.FirstName)
	r.LastName = strings.TrimSpace(r.LastName)
	r.Email = strings.TrimSpace(r.Email)
	r.Company = strings.TrimSpace(r.Company)
	r.Service = strings.TrimSpace(r.Service)
	r.Message = strings.TrimSpace(r.Message)
}

// SanitizeHeader 移除 CR/LF 等控制字符，防止头部注入
func SanitizeHeader(value string) string {
	value = strings.Map(func(r rune) rune {
		switch {
		case r == '\r' || r == '\n':
			return ' '
		case r < 0x20 && r != '\t', r == 0x7f:
			return -1
		}
		return r
	}, value)
	return strings.Join(strings.Fields(value), " ")
}
