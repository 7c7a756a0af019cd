package validator

import (
	"database/sql/driver"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	entranslations "github.com/go-playground/validator/v10/translations/en"
	"github.com/google/uuid"
	"github.com/guregu/null/v6"

	"github.com/beanbocchi/stowage/internal/model"
)

var (
	once     sync.Once
	validate *CustomValidator
)

// nameTags are looked up in order to name a field in error messages, so
// callers see the name they sent rather than the Go field name.
var nameTags = []string{"json", "query", "param", "mapstructure"}

type CustomValidator struct {
	trans     ut.Translator
	validator *validator.Validate
}

func New() (*CustomValidator, error) {
	locale := en.New()
	trans, _ := ut.New(locale, locale).GetTranslator("en")

	validate := validator.New(
		validator.WithRequiredStructEnabled(),
	)
	validate.RegisterTagNameFunc(fieldName)

	if err := entranslations.RegisterDefaultTranslations(validate, trans); err != nil {
		return nil, fmt.Errorf("register translations: %w", err)
	}

	if err := validate.RegisterValidation("objectkey", validateObjectKey); err != nil {
		return nil, fmt.Errorf("register objectkey: %w", err)
	}
	err := validate.RegisterTranslation("objectkey", trans,
		func(ut ut.Translator) error {
			return ut.Add("objectkey", "{0} must be a relative object key without '.' or '..' segments or control characters", true)
		},
		func(ut ut.Translator, fe validator.FieldError) string {
			text, _ := ut.T("objectkey", fe.Field())
			return text
		},
	)
	if err != nil {
		return nil, fmt.Errorf("register objectkey translation: %w", err)
	}

	validate.RegisterCustomTypeFunc(
		ParseNullable,
		null.Bool{},
		null.Int32{},
		null.Int64{},
		null.String{},
		null.Time{},
		uuid.NullUUID{},
	)

	return &CustomValidator{
		trans:     trans,
		validator: validate,
	}, nil
}

// Validate implements echo.Validator.
func (cv *CustomValidator) Validate(i any) error {
	err := cv.validator.Struct(i)
	if valErr, ok := err.(validator.ValidationErrors); ok {
		text, err := sonic.Marshal(valErr.Translate(cv.trans))
		if err != nil {
			return valErr
		}
		return model.ErrValidation.Fmt(string(text))
	}

	return err
}

func fieldName(field reflect.StructField) string {
	for _, tag := range nameTags {
		name, _, _ := strings.Cut(field.Tag.Get(tag), ",")
		if name == "-" {
			return ""
		}
		if name != "" {
			return name
		}
	}
	return field.Name
}

// validateObjectKey accepts keys that stay inside a store root once a leading
// slash is trimmed.
func validateObjectKey(fl validator.FieldLevel) bool {
	key := strings.TrimPrefix(fl.Field().String(), "/")
	if key == "" || strings.HasSuffix(key, "/") {
		return false
	}
	for _, r := range key {
		if r < 0x20 || r == 0x7f {
			return false
		}
	}
	for _, segment := range strings.Split(key, "/") {
		if segment == "" || segment == "." || segment == ".." {
			return false
		}
	}
	return true
}

type Nullable interface {
	driver.Valuer
}

// Workaround for omitnil not working with "untyped nil"
// https://github.com/go-playground/validator/issues/1209#issuecomment-1892359649
var nilValue *struct{}

// ParseNullable implements validator.CustomTypeFunc
func ParseNullable(field reflect.Value) any {
	if nullValue, ok := field.Interface().(Nullable); ok {
		if val, err := nullValue.Value(); err == nil {
			if val == nil {
				return nilValue
			}
			return val
		}
	}

	return nil
}

// Validate checks i against its struct tags using the shared validator.
func Validate(i any) error {
	once.Do(func() {
		var err error
		validate, err = New()
		if err != nil {
			panic(fmt.Sprintf("create validator: %v", err))
		}
	})
	return validate.Validate(i)
}
