package ignore

import (
	"os"
	"path/filepath"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"
)

// FileName 用户自定义忽略规则所在的文件
const FileName = ".bvignore"

// defaultRules 强制生效，防止把仓库自身或敏感文件导入进去
var defaultRules = []string{
	// --- 关键系统目录 ---
	".bv",  // 绝对禁止导入仓库元数据目录 (块文件、catalog.db)，否则会无限递归
	".git", // 忽略 Git 仓库数据

	// --- 安全与配置 ---
	"config.yaml", // 防止 S3 Secret Key 泄露
	".env",        // 防止环境变量文件泄露

	// --- 常见垃圾文件 ---
	".DS_Store", // macOS
	"Thumbs.db", // Windows
}

// Matcher 封装了忽略逻辑
// 它负责判断一个文件是否应该在目录导入时被跳过
type Matcher struct {
	ignorer *gitignore.GitIgnore
}

// NewMatcher 初始化忽略匹配器
// rootPath: 被导入的目录（用于查找 .bvignore 文件）
// extra: 额外的规则 (例如命令行 --exclude)
func NewMatcher(rootPath string, extra ...string) (*Matcher, error) {
	rules := append(append([]string{}, defaultRules...), extra...)

	ignoreFilePath := filepath.Join(rootPath, FileName)
	if _, err := os.Stat(ignoreFilePath); err == nil {
		// 用户定义了 .bvignore：文件内容和默认规则合并编译
		ignorer, err := gitignore.CompileIgnoreFileAndLines(ignoreFilePath, rules...)
		if err != nil {
			return nil, err
		}
		return &Matcher{ignorer: ignorer}, nil
	}

	return &Matcher{ignorer: gitignore.CompileIgnoreLines(rules...)}, nil
}

// Matches 检查给定的路径是否匹配忽略规则
// path: 相对于导入根目录的路径 (例如 "data/model.bin")
// isDir: 目录会额外带上尾部斜杠再匹配一次，让 "build/" 这类规则生效
// 返回: true 表示应该忽略 (Skip), false 表示应该保留 (Keep)
func (m *Matcher) Matches(path string, isDir bool) bool {
	if m == nil || m.ignorer == nil {
		return false
	}
	path = filepath.ToSlash(path)
	if m.ignorer.MatchesPath(path) {
		return true
	}
	return isDir && !strings.HasSuffix(path, "/") && m.ignorer.MatchesPath(path+"/")
}
