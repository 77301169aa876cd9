package validation

import (
	"net/http"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"
)

// BindAndValidate binds the JSON body into out and runs validation. On failure
// it writes a 400 and returns the error so the handler can stop.
func BindAndValidate(c *gin.Context, out interface{}, v *validatorv10.Validate) error {
	return bindAndValidate(c, out, v, "")
}

// BindAndValidateMessage is BindAndValidate for routes with a fixed error
// contract: any failure answers 400 with {"error": message} and no details.
func BindAndValidateMessage(c *gin.Context, out interface{}, v *validatorv10.Validate, message string) error {
	return bindAndValidate(c, out, v, message)
}

func bindAndValidate(c *gin.Context, out interface{}, v *validatorv10.Validate, message string) error {
	if err := c.ShouldBindJSON(out); err != nil {
		if message != "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": message})
			return err
		}
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "invalid request body",
			"msg":   err.Error(),
		})
		return err
	}

	if err := v.Struct(out); err != nil {
		if message != "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": message})
			return err
		}
		errs := validationErrorsToMap(err)
		c.JSON(http.StatusBadRequest, gin.H{
			"error":  "validation failed",
			"fields": errs,
		})
		return err
	}
	return nil
}

func validationErrorsToMap(err error) map[string]string {
	out := map[string]string{}
	if ve, ok := err.(validatorv10.ValidationErrors); ok {
		for _, fe := range ve {
			out[fe.Namespace()] = fe.Tag()
		}
	} else {
		out["error"] = err.Error()
	}
	return out
}
