package utils

import (
	"fmt"
	"os"
	"strings"
)

// SecretsDir - стандартный путь Docker Secrets. Переопределяется в тестах.
var SecretsDir = "/run/secrets"

// ReadSecret читает секрет из файла в каталоге Docker Secrets.
func ReadSecret(secretName string) (string, error) {
	filePath := fmt.Sprintf("%s/%s", strings.TrimRight(SecretsDir, "/"), secretName)
	secretBytes, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to read secret file %s: %w", filePath, err)
	}
	secret := strings.TrimSpace(string(secretBytes))
	if secret == "" {
		return "", fmt.Errorf("secret file %s is empty", filePath)
	}
	return secret, nil
}

// ReadSecretOrEnv читает секрет из файла, а если файла нет - из переменной окружения.
// Fallback на env нужен только для локальной разработки.
func ReadSecretOrEnv(secretName, envName string) (string, error) {
	secret, err := ReadSecret(secretName)
	if err == nil {
		return secret, nil
	}
	if v := strings.TrimSpace(os.Getenv(envName)); v != "" {
		return v, nil
	}
	return "", fmt.Errorf("secret %s is not available (file or %s): %w", secretName, envName, err)
}

// OptionalSecret возвращает секрет или пустую строку, если он не задан ни файлом, ни env.
func OptionalSecret(secretName, envName string) string {
	secret, err := ReadSecretOrEnv(secretName, envName)
	if err != nil {
		return ""
	}
	return secret
}
