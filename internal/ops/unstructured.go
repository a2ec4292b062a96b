package ops

import "k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

func nestedBool(obj map[string]interface{}, fields ...string) (bool, bool, error) {
	return unstructured.NestedBool(obj, fields...)
}

func nestedString(obj map[string]interface{}, fields ...string) (string, bool, error) {
	return unstructured.NestedString(obj, fields...)
}
