package handler

import (
	"reflect"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"degreefi/backend/internal/eligibility"
	"degreefi/backend/internal/service"
)

const (
	gradeTag   = "grade"
	kePhoneTag = "ke_phone"
)

var registerOnce sync.Once

// RegisterValidators 向 gin 的校验引擎注册自定义 tag，可重复调用
func RegisterValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		_ = v.RegisterValidation(gradeTag, validateGrade)
		_ = v.RegisterValidation(kePhoneTag, validateKEPhone)
	})
}

// validateGrade 成绩为 0-4 的整数档
func validateGrade(fl validator.FieldLevel) bool {
	f := fl.Field()
	if f.Kind() == reflect.Ptr {
		if f.IsNil() {
			return false
		}
		f = f.Elem()
	}
	switch f.Kind() {
	case reflect.Float32, reflect.Float64:
		return eligibility.ValidateGrade(f.Float()) == nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return eligibility.ValidateGrade(float64(f.Int())) == nil
	}
	return false
}

func validateKEPhone(fl validator.FieldLevel) bool {
	return service.PhonePattern.MatchString(fl.Field().String())
}
