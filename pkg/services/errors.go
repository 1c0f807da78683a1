package services

import "errors"

// パイプラインのエラー分類
// データセット単位で返るのはErrSchemaUnresolvedと特徴量生成の失敗のみ。
// それ以外は製品単位で記録・スキップされる
var (
	// ErrSchemaUnresolved 必須の列役割が解決できない
	ErrSchemaUnresolved = errors.New("必須列が特定できません")
	// ErrInsufficientHistory 学習に必要な履歴が不足（平均法へフォールバック）
	ErrInsufficientHistory = errors.New("履歴データが不足しています")
	// ErrDateParse 日付として解釈できない値
	ErrDateParse = errors.New("日付の解析に失敗しました")
	// ErrModelFit モデル学習中の数値的な失敗
	ErrModelFit = errors.New("モデルの学習に失敗しました")
	// ErrForecastUnavailable モデルも履歴もなく予測できない（ゼロ予測を返す）
	ErrForecastUnavailable = errors.New("予測に使えるモデル・履歴がありません")
	// ErrEmptyDataset 行がないデータセット
	ErrEmptyDataset = errors.New("データセットが空です")
	// ErrUnsupportedFormat .csv/.xlsx以外のファイル
	ErrUnsupportedFormat = errors.New("サポートされていないファイル形式です。.xlsxまたは.csvを指定してください")
	// ErrNoDataRows ヘッダー行と少なくとも1行のデータが必要
	ErrNoDataRows = errors.New("ファイルにはヘッダー行と少なくとも1行のデータが必要です")
)
