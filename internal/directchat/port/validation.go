package port

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/aelexs/directchat/internal/domain"
	"github.com/aelexs/directchat/internal/errmap"
	"github.com/aelexs/directchat/pkg/protocol"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their wire name.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		for _, tag := range []string{"json", "query"} {
			name, _, _ := strings.Cut(f.Tag.Get(tag), ",")
			if name != "" && name != "-" {
				return name
			}
		}
		return f.Name
	})
	v.RegisterAlias("message_text", fmt.Sprintf("required,min=%d,max=%d",
		domain.MinMessageTextLength, domain.MaxMessageTextLength))
	v.RegisterAlias("page_number", fmt.Sprintf("min=1,max=%d", domain.MaxPage))
	v.RegisterAlias("page_size", fmt.Sprintf("min=1,max=%d", domain.MaxPageSize))
	return v
}

// createChatInput is the validated CREATE_CHAT payload.
type createChatInput struct {
	ReceiverID  string `json:"receiverId" validate:"uuid"`
	MessageText string `json:"messageText" validate:"message_text"`
}

// sendMessageInput is the validated SEND_MESSAGE payload.
type sendMessageInput struct {
	DirectChatID string `json:"directChatId" validate:"uuid"`
	MessageText  string `json:"messageText" validate:"message_text"`
}

// chatMessagesQuery is the validated chat history query.
type chatMessagesQuery struct {
	ChatID string `query:"chatId" validate:"uuid"`
	Page   int    `query:"page" validate:"page_number"`
	Take   int    `query:"take" validate:"page_size"`
}

// lastChatsQuery is the validated chat list query.
type lastChatsQuery struct {
	Page int `query:"page" validate:"page_number"`
	Take int `query:"take" validate:"page_size"`
}

// validateInput checks every field of v and returns all violations at once
// as an *errmap.ValidationError. Each field reports only its first failing
// rule, so "empty" and "too long" never appear together.
func validateInput(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate input: %w", err)
	}

	fields := make([]protocol.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, protocol.FieldError{
			Field:   fe.Field(),
			Message: fieldMessage(fe),
		})
	}
	return errmap.NewValidationError(fields)
}

func fieldMessage(fe validator.FieldError) string {
	name := fe.Field()
	switch fe.ActualTag() {
	case "required":
		return name + " should not be empty"
	case "uuid":
		return name + " must be a UUID"
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be shorter than or equal to %s characters", name, fe.Param())
		}
		return fmt.Sprintf("%s must not be greater than %s", name, fe.Param())
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be longer than or equal to %s characters", name, fe.Param())
		}
		return fmt.Sprintf("%s must not be less than %s", name, fe.Param())
	default:
		return name + " is invalid"
	}
}
